package domain

import "testing"

// FuzzParseRecordID checks the trust-boundary parser never panics and that
// accepted values round-trip.
func FuzzParseRecordID(f *testing.F) {
	f.Add("")
	f.Add("550e8400-e29b-41d4-a716-446655440000")
	f.Add("00000000-0000-0000-0000-000000000000")
	f.Add("not-a-uuid")
	f.Add("'; DROP TABLE records;--")
	f.Add("550e8400-e29b-41d4-a716-446655440000\x00suffix")

	f.Fuzz(func(t *testing.T, input string) {
		id, err := ParseRecordID(input)
		if err != nil {
			return
		}
		roundTrip, err := ParseRecordID(id.String())
		if err != nil {
			t.Errorf("accepted id failed round-trip: %v", err)
		}
		if roundTrip != id {
			t.Error("round-trip changed id value")
		}

		// Record and parent parsing share validation; they must agree.
		if _, err := ParseParentID(input); err != nil {
			t.Errorf("parent parser rejected input the record parser accepted: %v", err)
		}
	})
}
