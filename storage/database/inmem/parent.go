package inmemdb

import (
	"context"
	"sort"

	"github.com/trezcool/sala/core"
	"github.com/trezcool/sala/core/parent"
)

type parentRepository struct {
	db *DB
}

var _ parent.Repository = (*parentRepository)(nil) // interface compliance check

func NewParentRepository(db *DB) *parentRepository {
	return &parentRepository{db: db}
}

func cloneParent(p parent.Parent) parent.Parent {
	p.StudentIDs = cloneStrings(p.StudentIDs)
	if p.StudentIDs == nil {
		p.StudentIDs = []string{}
	}
	return p
}

func (repo *parentRepository) CheckPhone(_ context.Context, phone string, excludedIDs ...string) error {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, p := range repo.db.parents {
		if phone != "" && p.Phone == phone && !core.Contains(excludedIDs, p.ID) {
			return parent.ErrPhoneExists
		}
	}
	return nil
}

func (repo *parentRepository) LastCode(_ context.Context, prefix string) (string, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	codes := make([]string, 0, len(repo.db.parents))
	for _, p := range repo.db.parents {
		codes = append(codes, p.ParentCode)
	}
	return lastCode(codes, prefix), nil
}

func (repo *parentRepository) CreateParent(_ context.Context, p parent.Parent) (parent.Parent, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	p.ID = newID()
	p.StudentIDs = nil
	repo.db.parents[p.ID] = cloneParent(p)
	return cloneParent(p), nil
}

func (repo *parentRepository) QueryParents(_ context.Context, filter parent.QueryFilter) ([]parent.Parent, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	parents := make([]parent.Parent, 0)
	for _, p := range repo.db.parents {
		if !matches(filter.Search, p.KhmerName, p.EnglishName, p.ParentCode, p.Phone) ||
			(filter.StudentID != "" && !core.Contains(p.StudentIDs, filter.StudentID)) ||
			(filter.UserID != "" && p.UserID != filter.UserID) ||
			(filter.IsActive != nil && p.IsActive != *filter.IsActive) ||
			!inList(filter.IDs, p.ID) {
			continue
		}
		parents = append(parents, cloneParent(p))
	}
	sort.Slice(parents, func(i, j int) bool { return parents[i].ParentCode < parents[j].ParentCode })
	return parents, nil
}

func (repo *parentRepository) GetParent(_ context.Context, id string) (parent.Parent, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if p, ok := repo.db.parents[id]; ok {
		return cloneParent(p), nil
	}
	return parent.Parent{}, parent.ErrNotFound
}

func (repo *parentRepository) GetParentByUserID(_ context.Context, userID string) (parent.Parent, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, p := range repo.db.parents {
		if userID != "" && p.UserID == userID {
			return cloneParent(p), nil
		}
	}
	return parent.Parent{}, parent.ErrNotFound
}

// UpdateParent keeps the linked students: they are changed through LinkStudents and UnlinkStudent.
func (repo *parentRepository) UpdateParent(_ context.Context, p parent.Parent) (parent.Parent, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	orig, ok := repo.db.parents[p.ID]
	if !ok {
		return parent.Parent{}, parent.ErrNotFound
	}
	p.StudentIDs = orig.StudentIDs
	repo.db.parents[p.ID] = cloneParent(p)
	return cloneParent(p), nil
}

func (repo *parentRepository) DeleteParent(_ context.Context, id string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.parents[id]; !ok {
		return parent.ErrNotFound
	}
	delete(repo.db.parents, id)
	return nil
}

func (repo *parentRepository) LinkStudents(_ context.Context, parentID string, studentIDs []string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	p, ok := repo.db.parents[parentID]
	if !ok {
		return parent.ErrNotFound
	}
	ids := cloneStrings(p.StudentIDs)
	for _, id := range studentIDs {
		if _, exists := repo.db.students[id]; exists && !core.Contains(ids, id) {
			ids = append(ids, id)
		}
	}
	p.StudentIDs = ids
	repo.db.parents[parentID] = p
	return nil
}

func (repo *parentRepository) UnlinkStudent(_ context.Context, parentID, studentID string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	p, ok := repo.db.parents[parentID]
	if !ok {
		return parent.ErrNotFound
	}
	p.StudentIDs = without(p.StudentIDs, studentID)
	repo.db.parents[parentID] = p
	return nil
}
