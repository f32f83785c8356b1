package index

// CardIndex defines the interface for card indexing and run journaling.
// Consumers should depend on this interface rather than the concrete *DB type
// to facilitate testing with mocks.
type CardIndex interface {
	UpsertCard(c CardRow, body string) error
	DeleteCard(id string) error
	GetChecksum(id string) (string, error)
	GetCard(id string) (*CardRow, error)
	ListCards() ([]CardRow, error)
	AllChecksums() (map[string]string, error)
	Search(query string, limit int) ([]SearchResult, error)
	RecordRun(r RunRecord) (int64, error)
	ListRuns(kind string, limit int) ([]RunRecord, error)
	Close() error
}

// Verify *DB satisfies CardIndex at compile time.
var _ CardIndex = (*DB)(nil)
