package models

import (
	"testing"
	"time"
)

func TestDeriveRestoredStatus(t *testing.T) {
	now := time.Now()
	cases := []struct {
		name string
		q    Quote
		want string
	}{
		{"never sent", Quote{}, StatusDraft},
		{"sent not accepted", Quote{DateEnvoi: &now}, StatusSent},
		{"accepted", Quote{DateEnvoi: &now, DateAcceptation: &now}, StatusAccepted},
		// Un marqueur d'acceptation sans envoi ne devrait pas exister, mais
		// la dérivation reste déterministe.
		{"accepted without send marker", Quote{DateAcceptation: &now}, StatusAccepted},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := DeriveRestoredStatus(&c.q); got != c.want {
				t.Fatalf("DeriveRestoredStatus = %q, want %q", got, c.want)
			}
		})
	}
}

func TestIsExpired(t *testing.T) {
	now := time.Now()
	past := now.Add(-24 * time.Hour)
	future := now.Add(24 * time.Hour)

	if (&Quote{Status: StatusSent, DateValidite: &past}).IsExpired(now) != true {
		t.Fatalf("sent quote past validity should be expired")
	}
	if (&Quote{Status: StatusViewed, DateValidite: &past}).IsExpired(now) != true {
		t.Fatalf("viewed quote past validity should be expired")
	}
	if (&Quote{Status: StatusSent, DateValidite: &future}).IsExpired(now) {
		t.Fatalf("quote within validity should not be expired")
	}
	if (&Quote{Status: StatusSent}).IsExpired(now) {
		t.Fatalf("quote without validity date should never expire")
	}
	if (&Quote{Status: StatusAccepted, DateValidite: &past}).IsExpired(now) {
		t.Fatalf("accepted quote should not lazily expire")
	}
	if (&Quote{Status: StatusDraft, DateValidite: &past}).IsExpired(now) {
		t.Fatalf("draft should not lazily expire")
	}
}
