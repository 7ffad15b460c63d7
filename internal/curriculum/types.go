package curriculum

// Subject is a top-level curriculum (e.g., an introduction to Buddhism).
type Subject struct {
	ID          string `yaml:"id" json:"id"`
	Title       string `yaml:"title" json:"title"`
	Description string `yaml:"description" json:"description,omitempty"`
	Units       []Unit `yaml:"units" json:"units"`
}

// Unit is an ordered group of lessons closed by one checkpoint.
type Unit struct {
	ID         string     `yaml:"id" json:"id"`
	Ordinal    int        `yaml:"ordinal" json:"ordinal"`
	Title      string     `yaml:"title" json:"title"`
	Lessons    []Lesson   `yaml:"lessons" json:"lessons"`
	Checkpoint Assessment `yaml:"checkpoint" json:"checkpoint"`
}

// Lesson is a single study item within a unit.
type Lesson struct {
	ID               string    `yaml:"id" json:"id"`
	Title            string    `yaml:"title" json:"title"`
	Difficulty       string    `yaml:"difficulty" json:"difficulty"`
	EstimatedMinutes int       `yaml:"estimated_minutes" json:"estimated_minutes"`
	Objectives       []string  `yaml:"objectives" json:"objectives,omitempty"`
	KeyTerms         []KeyTerm `yaml:"key_terms" json:"key_terms,omitempty"`
	Topics           []string  `yaml:"topics" json:"topics,omitempty"`
}

// KeyTerm pairs a vocabulary term with its definition.
type KeyTerm struct {
	Term       string `yaml:"term" json:"term"`
	Definition string `yaml:"definition" json:"definition"`
}

// Assessment is the checkpoint that ends a unit.
type Assessment struct {
	ID            string `yaml:"id" json:"id"`
	Title         string `yaml:"title" json:"title"`
	QuestionCount int    `yaml:"question_count" json:"question_count"`
}

// Clone returns a deep copy of the subject. Catalog consumers only ever see clones.
func (s Subject) Clone() Subject {
	out := s
	out.Units = make([]Unit, len(s.Units))
	for i, u := range s.Units {
		out.Units[i] = u.Clone()
	}
	return out
}

// Clone returns a deep copy of the unit.
func (u Unit) Clone() Unit {
	out := u
	out.Lessons = make([]Lesson, len(u.Lessons))
	for i, l := range u.Lessons {
		out.Lessons[i] = l.Clone()
	}
	return out
}

// Clone returns a deep copy of the lesson.
func (l Lesson) Clone() Lesson {
	out := l
	out.Objectives = append([]string(nil), l.Objectives...)
	out.KeyTerms = append([]KeyTerm(nil), l.KeyTerms...)
	out.Topics = append([]string(nil), l.Topics...)
	return out
}

// Unit returns the unit with the given ID.
func (s Subject) Unit(id string) (Unit, bool) {
	for _, u := range s.Units {
		if u.ID == id {
			return u, true
		}
	}
	return Unit{}, false
}

// Lesson returns the lesson with the given ID.
func (u Unit) Lesson(id string) (Lesson, bool) {
	for _, l := range u.Lessons {
		if l.ID == id {
			return l, true
		}
	}
	return Lesson{}, false
}

// HasContext reports whether the lesson carries anything content can be built from.
func (l Lesson) HasContext() bool {
	return l.Title != "" || len(l.KeyTerms) > 0 || len(l.Objectives) > 0 || len(l.Topics) > 0
}
