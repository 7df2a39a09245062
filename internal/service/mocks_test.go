package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/prn-tf/barrett-share/internal/domain"
	"github.com/prn-tf/barrett-share/internal/repository"
)

// MockUserRepository is a map-backed implementation of repository.UserRepository.
type MockUserRepository struct {
	mu        sync.Mutex
	users     map[string]*domain.User
	nextID    int64
	createErr error
	getErr    error
}

func NewMockUserRepository() *MockUserRepository {
	return &MockUserRepository{
		users:  make(map[string]*domain.User),
		nextID: 1,
	}
}

func (m *MockUserRepository) Create(ctx context.Context, user *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	if _, exists := m.users[user.Username]; exists {
		return domain.ErrUserAlreadyExists
	}
	user.ID = m.nextID
	m.nextID++
	m.users[user.Username] = user
	return nil
}

func (m *MockUserRepository) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	for _, u := range m.users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (m *MockUserRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	if u, exists := m.users[username]; exists {
		return u, nil
	}
	return nil, domain.ErrUserNotFound
}

func (m *MockUserRepository) Update(ctx context.Context, user *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.users[user.Username]; !exists {
		return domain.ErrUserNotFound
	}
	m.users[user.Username] = user
	return nil
}

func (m *MockUserRepository) Delete(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for name, u := range m.users {
		if u.ID == id {
			delete(m.users, name)
			return nil
		}
	}
	return domain.ErrUserNotFound
}

func (m *MockUserRepository) List(ctx context.Context, opts repository.ListOptions) (*repository.ListResult[domain.User], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := &repository.ListResult[domain.User]{
		Total:  int64(len(m.users)),
		Offset: opts.Offset,
		Limit:  opts.Limit,
	}
	for _, u := range m.users {
		result.Items = append(result.Items, u)
	}
	return result, nil
}

func (m *MockUserRepository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, exists := m.users[username]
	return exists, nil
}

// MockFileRepository is a map-backed implementation of repository.FileRepository.
// Retired link ids are tracked so Create can simulate the collision check.
type MockFileRepository struct {
	mu        sync.Mutex
	files     map[int64]*domain.FileRecord
	retired   map[string]bool
	nextID    int64
	createErr error
	getErr    error
}

func NewMockFileRepository() *MockFileRepository {
	return &MockFileRepository{
		files:   make(map[int64]*domain.FileRecord),
		retired: make(map[string]bool),
		nextID:  1,
	}
}

func (m *MockFileRepository) Create(ctx context.Context, file *domain.FileRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	if m.retired[file.LinkID] {
		return domain.ErrLinkIDCollision
	}
	for _, f := range m.files {
		if f.LinkID == file.LinkID {
			return domain.ErrLinkIDCollision
		}
	}
	file.ID = m.nextID
	m.nextID++
	m.files[file.ID] = file
	return nil
}

func (m *MockFileRepository) GetByID(ctx context.Context, id int64) (*domain.FileRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	if f, exists := m.files[id]; exists {
		copied := *f
		return &copied, nil
	}
	return nil, domain.ErrFileNotFound
}

func (m *MockFileRepository) GetByLinkID(ctx context.Context, linkID string) (*domain.FileRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	for _, f := range m.files {
		if f.LinkID == linkID {
			copied := *f
			return &copied, nil
		}
	}
	return nil, domain.ErrLinkNotFound
}

func (m *MockFileRepository) ListByOwner(ctx context.Context, ownerID int64) ([]*domain.FileRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*domain.FileRecord
	for _, f := range m.files {
		if f.OwnerID == ownerID {
			copied := *f
			result = append(result, &copied)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ID > result[j].ID
	})
	return result, nil
}

func (m *MockFileRepository) UpdatePermission(ctx context.Context, id int64, permission domain.Permission, passwordHash *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, exists := m.files[id]
	if !exists {
		return domain.ErrFileNotFound
	}
	f.SetPermission(permission, passwordHash)
	return nil
}

func (m *MockFileRepository) Delete(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, exists := m.files[id]
	if !exists {
		return domain.ErrFileNotFound
	}
	m.retired[f.LinkID] = true
	delete(m.files, id)
	return nil
}

func (m *MockFileRepository) CountByOwner(ctx context.Context, ownerID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var count int64
	for _, f := range m.files {
		if f.OwnerID == ownerID {
			count++
		}
	}
	return count, nil
}

func (m *MockFileRepository) List(ctx context.Context, opts repository.ListOptions) (*repository.ListResult[domain.FileRecord], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := &repository.ListResult[domain.FileRecord]{
		Total:  int64(len(m.files)),
		Offset: opts.Offset,
		Limit:  opts.Limit,
	}
	for _, f := range m.files {
		copied := *f
		result.Items = append(result.Items, &copied)
	}
	return result, nil
}

// MockStorageBackend is an in-memory implementation of storage.Backend.
type MockStorageBackend struct {
	mu       sync.Mutex
	blobs    map[string][]byte
	storeErr error
}

func NewMockStorageBackend() *MockStorageBackend {
	return &MockStorageBackend{blobs: make(map[string][]byte)}
}

func (m *MockStorageBackend) Store(ctx context.Context, key string, reader io.Reader, size int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.storeErr != nil {
		return 0, m.storeErr
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return 0, err
	}
	if size >= 0 && int64(len(data)) != size {
		return 0, fmt.Errorf("%w: expected %d bytes, wrote %d", domain.ErrSizeMismatch, size, len(data))
	}
	m.blobs[key] = data
	return int64(len(data)), nil
}

func (m *MockStorageBackend) Retrieve(ctx context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, exists := m.blobs[key]
	if !exists {
		return nil, domain.ErrBlobNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *MockStorageBackend) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blobs, key)
	return nil
}

func (m *MockStorageBackend) Exists(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, exists := m.blobs[key]
	return exists, nil
}

func (m *MockStorageBackend) GetSize(ctx context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, exists := m.blobs[key]
	if !exists {
		return 0, domain.ErrBlobNotFound
	}
	return int64(len(data)), nil
}

func (m *MockStorageBackend) GetPath(key string) string {
	return "mock://" + key
}

func (m *MockStorageBackend) BlobCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.blobs)
}
