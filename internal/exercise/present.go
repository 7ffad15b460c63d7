package exercise

// View is the learner-facing form of an exercise. It never carries correctness data.
type View struct {
	ID          string   `json:"id"`
	Type        Kind     `json:"type"`
	Prompt      string   `json:"prompt"`
	Options     []string `json:"options,omitempty"`
	Sentence    string   `json:"sentence,omitempty"`
	WordBank    []string `json:"word_bank,omitempty"`
	Terms       []string `json:"terms,omitempty"`
	Definitions []string `json:"definitions,omitempty"`
	Items       []string `json:"items,omitempty"`
	ImageURL    string   `json:"image_url,omitempty"`
	ImagePrompt string   `json:"image_prompt,omitempty"`
}

// Present strips an exercise down to what the learner may see. Match-pair
// definitions are rotated so their order never gives the pairing away.
func Present(ex Exercise) View {
	v := View{ID: ex.ExerciseID(), Type: ex.Kind(), Prompt: ex.Prompt()}

	switch e := ex.(type) {
	case SingleSelect:
		v.Options = e.Options
	case FillBlank:
		v.Sentence = e.Sentence
		v.WordBank = e.WordBank
	case MatchPairs:
		v.Terms = e.Terms()
		v.Definitions = rotate(e.Definitions(), 1)
	case SequenceOrder:
		v.Items = e.Items
	case ImageAssociation:
		v.Options = e.Options
		v.ImageURL = e.ImageURL
		v.ImagePrompt = e.ImagePrompt
	}
	return v
}

func rotate(s []string, n int) []string {
	if len(s) == 0 {
		return s
	}
	n %= len(s)
	return append(append([]string{}, s[n:]...), s[:n]...)
}
