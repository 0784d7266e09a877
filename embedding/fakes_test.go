package embedding

import (
	"context"
	"fmt"
	"sync"

	"github.com/poiesic/tickerscout/core"
	"github.com/poiesic/tickerscout/storage"
)

type memCatalog struct {
	mu        sync.Mutex
	companies []*core.Company
	blobs     map[int64][]byte
	findErr   error
	updateErr map[int64]error
}

func newMemCatalog(companies ...*core.Company) *memCatalog {
	return &memCatalog{
		companies: companies,
		blobs:     make(map[int64][]byte),
		updateErr: make(map[int64]error),
	}
}

func (c *memCatalog) FindCompaniesNeedingEmbedding(ctx context.Context) ([]*core.Company, error) {
	if c.findErr != nil {
		return nil, c.findErr
	}
	var out []*core.Company
	for _, company := range c.companies {
		if company.LongBusinessSummary != nil {
			out = append(out, company)
		}
	}
	return out, nil
}

func (c *memCatalog) UpdateEmbedding(ctx context.Context, id int64, blob []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.updateErr[id]; err != nil {
		return err
	}
	c.blobs[id] = blob
	return nil
}

func (c *memCatalog) FindCompanies(ctx context.Context, query storage.CompanyQuery) ([]*core.Company, error) {
	return nil, nil
}

func (c *memCatalog) GetCompanies(ctx context.Context, ids []int64, filters core.Filters) ([]*core.Company, error) {
	return nil, nil
}

func (c *memCatalog) AddCompanies(ctx context.Context, companies ...*core.Company) error {
	return nil
}

func (c *memCatalog) Sectors(ctx context.Context) ([]string, error) {
	return nil, nil
}

func (c *memCatalog) Close() error {
	return nil
}

func (c *memCatalog) blob(id int64) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.blobs[id]
	return b, ok
}

type memIndex struct {
	mu          sync.Mutex
	vectors     map[int64][]float32
	initErr     error
	storeErr    map[int64]error
	initialized int
}

func newMemIndex() *memIndex {
	return &memIndex{
		vectors:  make(map[int64][]float32),
		storeErr: make(map[int64]error),
	}
}

func (i *memIndex) Initialize(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.initErr != nil {
		return i.initErr
	}
	i.initialized++
	i.vectors = make(map[int64][]float32)
	return nil
}

func (i *memIndex) Store(ctx context.Context, companyID int64, vector []float32) error {
	if err := core.ValidateVector(vector); err != nil {
		return err
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	if err := i.storeErr[companyID]; err != nil {
		return err
	}
	i.vectors[companyID] = vector
	return nil
}

func (i *memIndex) SearchSimilar(ctx context.Context, query []float32, k int) ([]core.SimilarityMatch, error) {
	return nil, nil
}

func (i *memIndex) Type() string {
	return "memory"
}

func (i *memIndex) Close() error {
	return nil
}

func (i *memIndex) stored() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.vectors)
}

func (i *memIndex) vector(id int64) ([]float32, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	v, ok := i.vectors[id]
	return v, ok
}

// reindexingIndex is a memIndex that also implements storage.Reindexer.
type reindexingIndex struct {
	*memIndex
	reindexErr error
	reindexed  int
	// storedAtReindex is the vector count seen by the last Reindex call.
	storedAtReindex int
}

func (r *reindexingIndex) Reindex(ctx context.Context) error {
	r.reindexed++
	r.storedAtReindex = r.stored()
	return r.reindexErr
}

func ptr[T any](v T) *T { return &v }

func makeCompanies(n int) []*core.Company {
	companies := make([]*core.Company, n)
	for i := range companies {
		companies[i] = &core.Company{
			Id:                  int64(i + 1),
			Symbol:              fmt.Sprintf("SYM%d", i+1),
			LongBusinessSummary: ptr(fmt.Sprintf("Company %d makes widgets.", i+1)),
		}
	}
	return companies
}
