package testutil

// Seed bundles a human-readable name with seed bytes.
//
// Curated seeds are hand-crafted op streams for scenarios random fuzzing
// might take a while to find. The byte layout follows [OpGenerator] with
// [DefaultOpGenConfig]: one choice byte per op, then the op's arguments.
type Seed struct {
	Name string
	Data []byte
}

// Choice bytes for DefaultOpGenConfig.
const (
	seedSet       = 0
	seedDelete    = 40
	seedCommit    = 52
	seedCutCommit = 72
	seedReopen    = 84
	seedClear     = 96
)

// CuratedSeeds returns all curated seeds with descriptive names.
func CuratedSeeds() []Seed {
	return []Seed{
		{Name: "set_commit_reopen", Data: []byte{
			seedSet, 1, 0, 5, 'x',
			seedCommit,
			seedReopen,
		}},
		{Name: "cut_after_header", Data: []byte{
			seedSet, 1, 0, 5, 'x',
			seedCommit,
			seedSet, 1, 0, 9, 'y',
			seedCutCommit, 0, 16,
			seedReopen,
		}},
		{Name: "cut_after_full_write", Data: []byte{
			seedSet, 2, 0, 40, 'z',
			seedCutCommit, 8, 0,
			seedReopen,
		}},
		{Name: "oversize_value", Data: []byte{
			seedSet, 3, 1, 0, 'o',
			seedCommit,
		}},
		{Name: "fill_to_capacity", Data: []byte{
			seedSet, 0, 0, 255, 'a',
			seedSet, 1, 0, 255, 'b',
			seedSet, 2, 0, 255, 'c',
			seedSet, 3, 0, 255, 'd',
			seedSet, 4, 0, 255, 'e',
			seedSet, 5, 0, 255, 'f',
			seedSet, 6, 0, 255, 'g',
			seedSet, 7, 0, 255, 'h',
			seedCommit,
			seedDelete, 7,
			seedCommit,
			seedReopen,
		}},
		{Name: "delete_then_clear", Data: []byte{
			seedSet, 1, 0, 3, 'q',
			seedCommit,
			seedDelete, 1,
			seedDelete, 1,
			seedCommit,
			seedClear,
			seedReopen,
		}},
	}
}
