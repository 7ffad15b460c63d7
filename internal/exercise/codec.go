package exercise

import (
	"bytes"
	"encoding/json"
	"fmt"
)

type envelope struct {
	Type Kind `json:"type"`
}

// Marshal encodes an exercise as a JSON object tagged with its "type".
func Marshal(ex Exercise) ([]byte, error) {
	switch e := ex.(type) {
	case SingleSelect:
		return json.Marshal(struct {
			Type Kind `json:"type"`
			SingleSelect
		}{KindSingleSelect, e})
	case TrueFalse:
		return json.Marshal(struct {
			Type Kind `json:"type"`
			TrueFalse
		}{KindTrueFalse, e})
	case FillBlank:
		return json.Marshal(struct {
			Type Kind `json:"type"`
			FillBlank
		}{KindFillBlank, e})
	case MatchPairs:
		return json.Marshal(struct {
			Type Kind `json:"type"`
			MatchPairs
		}{KindMatchPairs, e})
	case SequenceOrder:
		return json.Marshal(struct {
			Type Kind `json:"type"`
			SequenceOrder
		}{KindSequenceOrder, e})
	case ImageAssociation:
		return json.Marshal(struct {
			Type Kind `json:"type"`
			ImageAssociation
		}{KindImageAssociation, e})
	default:
		return nil, fmt.Errorf("%w: cannot marshal %T", ErrInvalidExercise, ex)
	}
}

// Unmarshal decodes a single tagged exercise. It does not validate correctness
// data; call Validate or use DecodeList for untrusted input.
func Unmarshal(data []byte) (Exercise, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidExercise, err)
	}

	switch env.Type {
	case KindSingleSelect:
		return decodeAs[SingleSelect](data)
	case KindTrueFalse:
		return decodeAs[TrueFalse](data)
	case KindFillBlank:
		return decodeAs[FillBlank](data)
	case KindMatchPairs:
		return decodeAs[MatchPairs](data)
	case KindSequenceOrder:
		return decodeAs[SequenceOrder](data)
	case KindImageAssociation:
		return decodeAs[ImageAssociation](data)
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidExercise, env.Type)
	}
}

func decodeAs[T Exercise](data []byte) (Exercise, error) {
	var e T
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidExercise, err)
	}
	return e, nil
}

// MarshalList encodes exercises as {"exercises": [...]}.
func MarshalList(exs []Exercise) ([]byte, error) {
	items := make([]json.RawMessage, 0, len(exs))
	for _, ex := range exs {
		b, err := Marshal(ex)
		if err != nil {
			return nil, err
		}
		items = append(items, b)
	}
	return json.Marshal(struct {
		Exercises []json.RawMessage `json:"exercises"`
	}{items})
}

// DecodeList decodes untrusted exercise JSON, either {"exercises": [...]} or a
// bare array. Each entry is checked against the exercise JSON Schema and then
// validated; entries that fail are dropped and reported in dropped. err is only
// set when the payload as a whole cannot be read.
func DecodeList(data []byte) (exs []Exercise, dropped []error, err error) {
	items, err := splitList(data)
	if err != nil {
		return nil, nil, err
	}

	seen := make(map[string]bool, len(items))
	for i, item := range items {
		if err := validateSchema(item); err != nil {
			dropped = append(dropped, fmt.Errorf("exercise %d: %w", i, err))
			continue
		}
		ex, err := Unmarshal(item)
		if err != nil {
			dropped = append(dropped, fmt.Errorf("exercise %d: %w", i, err))
			continue
		}
		if err := ex.Validate(); err != nil {
			dropped = append(dropped, fmt.Errorf("exercise %d: %w", i, err))
			continue
		}
		if seen[ex.ExerciseID()] {
			dropped = append(dropped, fmt.Errorf("exercise %d: %w: duplicate id %s", i, ErrInvalidExercise, ex.ExerciseID()))
			continue
		}
		seen[ex.ExerciseID()] = true
		exs = append(exs, ex)
	}
	return exs, dropped, nil
}

func splitList(data []byte) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrInvalidExercise)
	}

	if trimmed[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidExercise, err)
		}
		return items, nil
	}

	var wrapped struct {
		Exercises []json.RawMessage `json:"exercises"`
	}
	if err := json.Unmarshal(trimmed, &wrapped); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidExercise, err)
	}
	if wrapped.Exercises == nil {
		return nil, fmt.Errorf("%w: missing exercises array", ErrInvalidExercise)
	}
	return wrapped.Exercises, nil
}

// DecodeAnswer decodes a raw answer for an exercise of the given kind.
func DecodeAnswer(kind Kind, raw json.RawMessage) (Answer, error) {
	switch kind {
	case KindSingleSelect, KindImageAssociation:
		return decodeAnswer[Choice](raw)
	case KindTrueFalse:
		return decodeAnswer[Verdict](raw)
	case KindFillBlank:
		return decodeAnswer[Text](raw)
	case KindMatchPairs:
		return decodeAnswer[Pairing](raw)
	case KindSequenceOrder:
		return decodeAnswer[Ordering](raw)
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrAnswerMismatch, kind)
	}
}

func decodeAnswer[T Answer](raw json.RawMessage) (Answer, error) {
	var a T
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&a); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAnswerMismatch, err)
	}
	return a, nil
}
