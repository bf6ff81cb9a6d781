package domain

import "testing"

func TestStatus_Valid(t *testing.T) {
	for _, s := range []Status{StatusPending, StatusSent, StatusViewed, StatusAnswered} {
		if !s.Valid() {
			t.Fatalf("%s should be valid", s)
		}
	}
	for _, s := range []Status{"", "done", "PENDING"} {
		if s.Valid() {
			t.Fatalf("%q should be invalid", s)
		}
	}
}

func TestStatus_Terminal(t *testing.T) {
	if !StatusAnswered.Terminal() {
		t.Fatalf("answered is terminal")
	}
	for _, s := range []Status{StatusPending, StatusSent, StatusViewed} {
		if s.Terminal() {
			t.Fatalf("%s is not terminal", s)
		}
	}
}

func TestStatus_AtLeast(t *testing.T) {
	order := []Status{StatusPending, StatusSent, StatusViewed, StatusAnswered}
	for i, s := range order {
		for j, other := range order {
			if got, want := s.AtLeast(other), i >= j; got != want {
				t.Fatalf("%s.AtLeast(%s) = %v, want %v", s, other, got, want)
			}
		}
	}
	// Unknown values never satisfy AtLeast in either direction.
	if Status("done").AtLeast(StatusPending) || StatusAnswered.AtLeast(Status("done")) {
		t.Fatalf("unknown statuses must not compare")
	}
}

func TestTableNames(t *testing.T) {
	cases := map[string]string{
		Assignment{}.TableName(): "assignments",
		Person{}.TableName():     "people",
		PushToken{}.TableName():  "push_tokens",
		Question{}.TableName():   "questions",
	}
	for got, want := range cases {
		if got != want {
			t.Fatalf("table name = %q, want %q", got, want)
		}
	}
}
