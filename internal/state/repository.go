package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/p-n-ai/pai-courseware/internal/economy"
	"github.com/p-n-ai/pai-courseware/internal/progress"
)

// recordVersion is bumped whenever the persisted JSON layout changes
// incompatibly. Older records read as absent.
const recordVersion = 1

// Global is the per-learner record that is independent of any subject.
type Global struct {
	Economy   economy.State `json:"economy"`
	Subjects  []string      `json:"subjects"`
	UpdatedAt time.Time     `json:"updated_at"`
}

type subjectEnvelope struct {
	Version int             `json:"version"`
	Record  progress.Record `json:"record"`
}

type globalEnvelope struct {
	Version int    `json:"version"`
	Global  Global `json:"global"`
}

// Repository maps learner records onto a KV transport.
//
// Layout:
//
//	learner/{learner_id}/subject/{subject_id}  course + progress
//	learner/{learner_id}/global                hearts, ledger, subject index
type Repository struct {
	kv KV
}

// NewRepository creates a repository over kv.
func NewRepository(kv KV) *Repository {
	return &Repository{kv: kv}
}

// Ping checks the underlying transport.
func (r *Repository) Ping(ctx context.Context) error {
	return r.kv.Ping(ctx)
}

func subjectKey(learnerID, subjectID string) string {
	return "learner/" + learnerID + "/subject/" + subjectID
}

func globalKey(learnerID string) string {
	return "learner/" + learnerID + "/global"
}

// SaveSubject writes one subject's course and progress.
func (r *Repository) SaveSubject(ctx context.Context, learnerID string, rec progress.Record) error {
	data, err := json.Marshal(subjectEnvelope{Version: recordVersion, Record: rec})
	if err != nil {
		return fmt.Errorf("marshal subject record: %w", err)
	}
	if err := r.kv.Put(ctx, subjectKey(learnerID, rec.Course.SubjectID), data); err != nil {
		return fmt.Errorf("save subject record: %w", err)
	}
	return nil
}

// LoadSubject reads one subject's record. ok is false when the record is
// absent or unreadable; only transport failures are returned as errors.
func (r *Repository) LoadSubject(ctx context.Context, learnerID, subjectID string) (rec progress.Record, ok bool, err error) {
	data, err := r.kv.Get(ctx, subjectKey(learnerID, subjectID))
	if errors.Is(err, ErrNotFound) {
		return progress.Record{}, false, nil
	}
	if err != nil {
		return progress.Record{}, false, fmt.Errorf("load subject record: %w", err)
	}

	var env subjectEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		slog.Warn("discarding unreadable subject record", "learner_id", learnerID, "subject_id", subjectID, "error", err)
		return progress.Record{}, false, nil
	}
	if env.Version != recordVersion {
		slog.Warn("discarding subject record with unknown version", "learner_id", learnerID, "subject_id", subjectID, "version", env.Version)
		return progress.Record{}, false, nil
	}
	if env.Record.Course.SubjectID != subjectID {
		slog.Warn("discarding subject record stored under wrong key", "learner_id", learnerID, "subject_id", subjectID, "stored", env.Record.Course.SubjectID)
		return progress.Record{}, false, nil
	}
	if err := env.Record.Validate(); err != nil {
		slog.Warn("discarding invalid subject record", "learner_id", learnerID, "subject_id", subjectID, "error", err)
		return progress.Record{}, false, nil
	}
	return env.Record, true, nil
}

// DeleteSubject removes one subject's record. Deleting an absent record is not an error.
func (r *Repository) DeleteSubject(ctx context.Context, learnerID, subjectID string) error {
	if err := r.kv.Delete(ctx, subjectKey(learnerID, subjectID)); err != nil {
		return fmt.Errorf("delete subject record: %w", err)
	}
	return nil
}

// SaveGlobal writes the learner's global record.
func (r *Repository) SaveGlobal(ctx context.Context, learnerID string, g Global) error {
	g.Subjects = slices.Clone(g.Subjects)
	slices.Sort(g.Subjects)
	g.Subjects = slices.Compact(g.Subjects)

	data, err := json.Marshal(globalEnvelope{Version: recordVersion, Global: g})
	if err != nil {
		return fmt.Errorf("marshal global record: %w", err)
	}
	if err := r.kv.Put(ctx, globalKey(learnerID), data); err != nil {
		return fmt.Errorf("save global record: %w", err)
	}
	return nil
}

// LoadGlobal reads the learner's global record with the same absent/corrupt
// semantics as LoadSubject.
func (r *Repository) LoadGlobal(ctx context.Context, learnerID string) (g Global, ok bool, err error) {
	data, err := r.kv.Get(ctx, globalKey(learnerID))
	if errors.Is(err, ErrNotFound) {
		return Global{}, false, nil
	}
	if err != nil {
		return Global{}, false, fmt.Errorf("load global record: %w", err)
	}

	var env globalEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		slog.Warn("discarding unreadable global record", "learner_id", learnerID, "error", err)
		return Global{}, false, nil
	}
	if env.Version != recordVersion {
		slog.Warn("discarding global record with unknown version", "learner_id", learnerID, "version", env.Version)
		return Global{}, false, nil
	}
	return env.Global, true, nil
}
