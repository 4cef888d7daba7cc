package directory

import (
	"context"
	"testing"
)

// Malformed path ids must resolve to "absent" without reaching Postgres,
// where the uuid cast would raise a server error. The nil handle panics if
// any lookup slips through to a query.
func TestRepoRejectsMalformedIDs(t *testing.T) {
	r := NewRepository(nil)
	ctx := context.Background()

	for _, id := range []string{"abc", "", "not-a-uuid", "123"} {
		u, err := r.GetUser(ctx, id)
		if u != nil || err != nil {
			t.Errorf("GetUser(%q) = %v, %v; want nil, nil", id, u, err)
		}
		b, err := r.GetBatch(ctx, id)
		if b != nil || err != nil {
			t.Errorf("GetBatch(%q) = %v, %v; want nil, nil", id, b, err)
		}
	}
}
