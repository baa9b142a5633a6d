package judgment

import (
	"errors"
	"testing"
)

func strPtr(s string) *string { return &s }

func TestMatcher_Criteria(t *testing.T) {
	t.Parallel()

	output := ModelOutput{
		"classification": "GREEN",
		"confidence":     0.92,
		"summary":        "Mutual NDA, 3-year term, no residuals clause",
	}

	tests := []struct {
		name    string
		command string
		when    When
		want    bool
	}{
		{name: "empty when is a wildcard", command: "anything", when: When{}, want: true},
		{name: "command equal", command: "triage-nda", when: When{Command: strPtr("triage-nda")}, want: true},
		{name: "command differs", command: "triage-msa", when: When{Command: strPtr("triage-nda")}, want: false},
		{name: "command is not a prefix match", command: "triage-nda-v2", when: When{Command: strPtr("triage-nda")}, want: false},
		{name: "classification substring", command: "x", when: When{ModelClassification: strPtr("GREEN")}, want: true},
		{name: "classification is case sensitive", command: "x", when: When{ModelClassification: strPtr("green")}, want: false},
		{name: "classification absent", command: "x", when: When{ModelClassification: strPtr("RED")}, want: false},
		{
			name:    "contains any keyword",
			command: "x",
			when:    When{HasOutputContains: true, ModelOutputContains: []string{"RED", "GREEN"}},
			want:    true,
		},
		{
			name:    "contains is case insensitive",
			command: "x",
			when:    When{HasOutputContains: true, ModelOutputContains: []string{"residuals"}},
			want:    true,
		},
		{
			name:    "contains no keyword",
			command: "x",
			when:    When{HasOutputContains: true, ModelOutputContains: []string{"YELLOW"}},
			want:    false,
		},
		{
			name:    "contains empty list never matches",
			command: "x",
			when:    When{HasOutputContains: true},
			want:    false,
		},
		{name: "intent on triage command", command: "triage-nda", when: When{ActionIntent: strPtr("approve")}, want: true},
		{name: "intent on other command", command: "draft-nda", when: When{ActionIntent: strPtr("approve")}, want: false},
		{
			name:    "all criteria AND-ed",
			command: "triage-nda",
			when: When{
				Command:             strPtr("triage-nda"),
				ModelClassification: strPtr("GREEN"),
				HasOutputContains:   true,
				ModelOutputContains: []string{"green"},
				ActionIntent:        strPtr("approve"),
			},
			want: true,
		},
		{
			name:    "one failing criterion fails the condition",
			command: "triage-nda",
			when: When{
				Command:             strPtr("triage-nda"),
				ModelClassification: strPtr("RED"),
			},
			want: false,
		},
		{name: "unknown keys ignored", command: "x", when: When{Unknown: []string{"risk_score"}}, want: true},
	}

	m := NewMatcher()
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := m.Matches(tt.command, output, Condition{ID: "c", When: tt.when})
			if err != nil {
				t.Fatalf("Matches() error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMatcher_StrictRejectsUnknownKeys(t *testing.T) {
	t.Parallel()

	m := &Matcher{Classifier: PrefixHeuristic{}, Strict: true}
	_, err := m.Matches("x", nil, Condition{ID: "c1", When: When{Unknown: []string{"risk_score"}}})

	var mee *MatchEvaluationError
	if !errors.As(err, &mee) {
		t.Fatalf("Matches() error = %v, want MatchEvaluationError", err)
	}
	if mee.ConditionID != "c1" || mee.Key != "risk_score" {
		t.Errorf("MatchEvaluationError = %+v", mee)
	}
}

type stubClassifier struct {
	ok  bool
	err error
}

func (s stubClassifier) ClassifyIntent(string, ModelOutput, string) (bool, error) {
	return s.ok, s.err
}

func TestMatcher_PluggableClassifier(t *testing.T) {
	t.Parallel()

	cond := Condition{ID: "c", When: When{ActionIntent: strPtr("approve")}}

	m := &Matcher{Classifier: stubClassifier{ok: true}}
	if ok, _ := m.Matches("draft-nda", nil, cond); !ok {
		t.Error("Matches() = false, want classifier verdict true")
	}

	m = &Matcher{Classifier: stubClassifier{err: errors.New("boom")}}
	if _, err := m.Matches("draft-nda", nil, cond); err == nil {
		t.Error("Matches() expected classifier error")
	}
}

func TestPrefixHeuristic_CustomPrefix(t *testing.T) {
	t.Parallel()

	p := PrefixHeuristic{Prefix: "review"}
	if ok, _ := p.ClassifyIntent("review-contract", nil, ""); !ok {
		t.Error("review-contract should carry intent")
	}
	if ok, _ := p.ClassifyIntent("triage-nda", nil, ""); ok {
		t.Error("triage-nda should not carry intent with prefix review")
	}
}

func TestOutputText(t *testing.T) {
	t.Parallel()

	got := OutputText(ModelOutput{"b": 1, "a": "<x>"})
	want := `{"a":"<x>","b":1}`
	if got != want {
		t.Errorf("OutputText() = %s, want %s", got, want)
	}
	if OutputText(nil) != "{}" {
		t.Errorf("OutputText(nil) = %s, want {}", OutputText(nil))
	}
}
