package prov

import (
	"strings"

	"github.com/google/uuid"
)

// namespace anchors all node identifiers. Fixed so that identical logical
// paths hash to identical UUIDs across runs, hosts, and both serialization
// formats.
var namespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://bidsfs.dev/nidm"))

// NodeID derives the deterministic identifier for a graph node from its
// logical path, e.g. ("activity", "sub-01_ses-pre") or
// ("measurement", "sub-01", "aseg.stats", "Left-Hippocampus", "volume").
//
// Collision-freedom comes from the path structure, stability from hashing;
// no counters, timestamps, or map ordering are involved.
func NodeID(parts ...string) string {
	u := uuid.NewSHA1(namespace, []byte(strings.Join(parts, "/")))
	return "urn:uuid:" + u.String()
}
