package phone

import "testing"

func TestDisplayStripsLabelsAndCountryCode(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		raw  string
		want string
	}{
		{raw: "Téléphone: 41234567", want: "41234567"},
		{raw: "Phone: 41234567", want: "41234567"},
		{raw: "Tel 41234567", want: "41234567"},
		{raw: "Tél: +222 41234567", want: "41234567"},
		{raw: "+22241234567", want: "41234567"},
		{raw: "+222-41234567", want: "41234567"},
		{raw: "41234567", want: "41234567"},
		{raw: "", want: ""},
		// Foreign numbers pass through with their own prefix.
		{raw: "+33612345678", want: "+33612345678"},
	}

	for _, tc := range testCases {
		if got := Display(tc.raw); got != tc.want {
			t.Fatalf("Display(%q) = %q, want %q", tc.raw, got, tc.want)
		}
	}
}

func TestDispatchAddsCountryCode(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		raw  string
		want string
	}{
		{raw: "41234567", want: "+22241234567"},
		{raw: "41 23 45 67", want: "+22241234567"},
		{raw: "Téléphone: 41234567", want: "+22241234567"},
		{raw: "+222 41234567", want: "+22241234567"},
		{raw: "+33612345678", want: "+33612345678"},
		{raw: "", want: ""},
	}

	for _, tc := range testCases {
		if got := Dispatch(tc.raw); got != tc.want {
			t.Fatalf("Dispatch(%q) = %q, want %q", tc.raw, got, tc.want)
		}
	}
}

func TestDispatchIdempotent(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"41234567",
		"+22241234567",
		"Tél: 41 23 45 67",
		"+33612345678",
		"",
		"garbage",
	}
	for _, raw := range inputs {
		once := Dispatch(raw)
		twice := Dispatch(once)
		if once != twice {
			t.Fatalf("Dispatch not idempotent for %q: %q then %q", raw, once, twice)
		}
	}
}

func TestDisplayAfterDispatchRoundTrip(t *testing.T) {
	t.Parallel()

	// For local numbers, Display strips exactly the country code Dispatch added.
	locals := []string{"41234567", "22334455", "Téléphone: 41234567"}
	for _, raw := range locals {
		want := Display(raw)
		if got := Display(Dispatch(raw)); got != want {
			t.Fatalf("Display(Dispatch(%q)) = %q, want %q", raw, got, want)
		}
	}
}

func TestDisplayName(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		raw  string
		want string
	}{
		{raw: "Fatimetou Mint Ahmed Téléphone:", want: "Fatimetou Mint Ahmed"},
		{raw: "Sidi Ould Cheikh Tel", want: "Sidi Ould Cheikh"},
		{raw: "Mariem Vall", want: "Mariem Vall"},
		{raw: "", want: ""},
	}

	for _, tc := range testCases {
		if got := DisplayName(tc.raw); got != tc.want {
			t.Fatalf("DisplayName(%q) = %q, want %q", tc.raw, got, tc.want)
		}
	}
}

func TestIsDispatchable(t *testing.T) {
	t.Parallel()

	valid := []string{"+22241234567", "+22222334455"}
	for _, p := range valid {
		if !IsDispatchable(p) {
			t.Fatalf("IsDispatchable(%q) = false, want true", p)
		}
	}

	invalid := []string{"12345", "41234567", "+2224123456", "+222412345678", "+33612345678", ""}
	for _, p := range invalid {
		if IsDispatchable(p) {
			t.Fatalf("IsDispatchable(%q) = true, want false", p)
		}
	}
}

func TestGrouped(t *testing.T) {
	t.Parallel()

	if got := Grouped("+22241234567"); got != "+222 41 23 45 67" {
		t.Fatalf("Grouped() = %q, want %q", got, "+222 41 23 45 67")
	}
	if got := Grouped("12345"); got != "12345" {
		t.Fatalf("Grouped() should pass through, got %q", got)
	}
}
