// Package fixtures generates deterministic fake corpus rows for tests
// and local demos, grounded on the corpus's own deterministic-faker
// pattern (seeding go-faker's crypto source from a seeded math/rand) and
// reusing the corpus's deterministic PRNG reader to seed UUID
// generation the same way.
package fixtures

import (
	"math/rand"

	"github.com/go-faker/faker/v4"
	"github.com/google/uuid"

	"github.com/kamura-io/cartograph/internal/corpus"
	"github.com/kamura-io/cartograph/pkg/prng"
)

// itemRow is the shape faker.FakeData populates for a generated row.
type itemRow struct {
	Name        string `faker:"name"`
	Description string `faker:"sentence"`
}

// Seed deterministically reseeds both go-faker and google/uuid so
// repeated calls with the same seed reproduce byte-identical fixtures.
func Seed(seed int64) {
	faker.SetRandomSource(rand.NewSource(seed))
	faker.SetCryptoSource(rand.New(rand.NewSource(seed)))
	uuid.SetRand(prng.New(seed))
}

// GenerateRows produces count deterministic fake rows, seeded by seed. Row IDs are assigned sequentially starting at 1; every row
// also carries a deterministic UUID field under "Id".
func GenerateRows(seed int64, count int) ([]corpus.Row, error) {
	Seed(seed)

	rows := make([]corpus.Row, count)
	for i := 0; i < count; i++ {
		var fake itemRow
		if err := faker.FakeData(&fake); err != nil {
			return nil, err
		}

		rows[i] = corpus.Row{
			RowID: uint32(i + 1),
			Fields: map[string]any{
				"Id":          uuid.New().String(),
				"Name":        fake.Name,
				"Description": fake.Description,
			},
		}
	}
	return rows, nil
}
