package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	domain "course-checkout/internal/domain/registration"
	interfaces "course-checkout/internal/interfaces/infrastructure"

	"github.com/google/uuid"
)

// MemoryStore is an in-process implementation of every repository, used by
// tests and by the memory database driver for demos. All mutations run under
// one lock, which plays the role of the database transaction.
type MemoryStore struct {
	mutex sync.RWMutex

	students      map[int64]domain.Student
	nextStudentID int64
	courses       map[int64]domain.Course
	registrations map[uuid.UUID]domain.PendingRegistration
	enrollments   map[uuid.UUID]domain.Enrollment
	failures      []domain.ReconciliationFailure
	events        map[string]time.Time
	eventOrder    []seenEvent

	commitErr error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		students:      make(map[int64]domain.Student),
		nextStudentID: 1,
		courses:       make(map[int64]domain.Course),
		registrations: make(map[uuid.UUID]domain.PendingRegistration),
		enrollments:   make(map[uuid.UUID]domain.Enrollment),
		events:        make(map[string]time.Time),
	}
}

// SeedDemoData loads the sample student and course used in local runs.
func (s *MemoryStore) SeedDemoData() {
	now := time.Now().UTC()
	_ = s.Students().Create(context.Background(), &domain.Student{
		FirstName:      "John",
		LastName:       "Doe",
		EnrollmentDate: now,
	})
	s.SaveCourse(&domain.Course{
		CourseID: 101,
		Name:     "Math 101",
		Capacity: 1,
		Price:    5000,
		Currency: "usd",
	})
}

// SaveCourse inserts or replaces a course row.
func (s *MemoryStore) SaveCourse(course *domain.Course) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	c := *course
	if c.Version == 0 {
		c.Version = 1
	}
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	s.courses[c.CourseID] = c
}

// FailNextCommit makes the next Commit return err without writing anything.
func (s *MemoryStore) FailNextCommit(err error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.commitErr = err
}

// EnrollmentCount returns how many enrollments exist for the pair.
func (s *MemoryStore) EnrollmentCount(studentID, courseID int64) int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	n := 0
	for _, e := range s.enrollments {
		if e.StudentID == studentID && e.CourseID == courseID {
			n++
		}
	}
	return n
}

func (s *MemoryStore) Students() interfaces.StudentRepository {
	return &memoryStudentRepository{store: s}
}

func (s *MemoryStore) Courses() interfaces.CourseRepository {
	return &memoryCourseRepository{store: s}
}

func (s *MemoryStore) Registrations() interfaces.RegistrationRepository {
	return &memoryRegistrationRepository{store: s}
}

func (s *MemoryStore) Reconciliations() interfaces.ReconciliationRepository {
	return &memoryReconciliationRepository{store: s}
}

// EventDeduplicator remembers event ids for ttl, like the Redis version.
func (s *MemoryStore) EventDeduplicator(ttl time.Duration) interfaces.EventDeduplicator {
	if ttl <= 0 {
		ttl = DefaultEventDedupTTL
	}
	return &memoryEventDeduplicator{store: s, ttl: ttl, now: time.Now}
}

// heldSeatsLocked counts enrollments plus in-flight holds. Caller holds the lock.
func (s *MemoryStore) heldSeatsLocked(courseID int64) (confirmed, inFlight int) {
	for _, e := range s.enrollments {
		if e.CourseID == courseID {
			confirmed++
		}
	}
	for _, r := range s.registrations {
		if r.CourseID == courseID && r.Status.HoldsSeat() {
			inFlight++
		}
	}
	return confirmed, inFlight
}

type memoryStudentRepository struct {
	store *MemoryStore
}

func (r *memoryStudentRepository) Create(ctx context.Context, student *domain.Student) error {
	r.store.mutex.Lock()
	defer r.store.mutex.Unlock()

	if student.StudentID == 0 {
		student.StudentID = r.store.nextStudentID
	}
	if student.StudentID >= r.store.nextStudentID {
		r.store.nextStudentID = student.StudentID + 1
	}
	now := time.Now().UTC()
	student.CreatedAt = now
	student.UpdatedAt = now
	r.store.students[student.StudentID] = *student
	return nil
}

func (r *memoryStudentRepository) GetByID(ctx context.Context, id int64) (*domain.Student, error) {
	r.store.mutex.RLock()
	defer r.store.mutex.RUnlock()

	student, ok := r.store.students[id]
	if !ok {
		return nil, nil
	}
	return &student, nil
}

type memoryCourseRepository struct {
	store *MemoryStore
}

func (r *memoryCourseRepository) GetByID(ctx context.Context, id int64) (*domain.Course, error) {
	r.store.mutex.RLock()
	defer r.store.mutex.RUnlock()

	course, ok := r.store.courses[id]
	if !ok {
		return nil, nil
	}
	return &course, nil
}

func (r *memoryCourseRepository) GetActiveEnrollmentCount(ctx context.Context, courseID int64) (int, error) {
	r.store.mutex.RLock()
	defer r.store.mutex.RUnlock()

	confirmed, _ := r.store.heldSeatsLocked(courseID)
	return confirmed, nil
}

type memoryRegistrationRepository struct {
	store *MemoryStore
}

func (r *memoryRegistrationRepository) CreatePending(ctx context.Context, reg *domain.PendingRegistration) error {
	r.store.mutex.Lock()
	defer r.store.mutex.Unlock()

	course, ok := r.store.courses[reg.CourseID]
	if !ok {
		return interfaces.ErrCapacityExceeded
	}

	for _, e := range r.store.enrollments {
		if e.StudentID == reg.StudentID && e.CourseID == reg.CourseID {
			return interfaces.ErrAlreadyEnrolled
		}
	}
	for _, existing := range r.store.registrations {
		if existing.StudentID == reg.StudentID && existing.CourseID == reg.CourseID && existing.Status.HoldsSeat() {
			return interfaces.ErrDuplicateInFlight
		}
	}

	confirmed, inFlight := r.store.heldSeatsLocked(reg.CourseID)
	if confirmed+inFlight >= course.Capacity {
		return interfaces.ErrCapacityExceeded
	}

	r.store.registrations[reg.RegistrationID] = *reg
	course.Version++
	r.store.courses[course.CourseID] = course
	return nil
}

func (r *memoryRegistrationRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.PendingRegistration, error) {
	r.store.mutex.RLock()
	defer r.store.mutex.RUnlock()

	reg, ok := r.store.registrations[id]
	if !ok {
		return nil, nil
	}
	return &reg, nil
}

func (r *memoryRegistrationRepository) GetBySessionID(ctx context.Context, sessionID string) (*domain.PendingRegistration, error) {
	r.store.mutex.RLock()
	defer r.store.mutex.RUnlock()

	for _, reg := range r.store.registrations {
		if reg.SessionID() == sessionID {
			found := reg
			return &found, nil
		}
	}
	return nil, nil
}

func (r *memoryRegistrationRepository) UpdateWithOptimisticLock(ctx context.Context, reg *domain.PendingRegistration) error {
	r.store.mutex.Lock()
	defer r.store.mutex.Unlock()

	current, ok := r.store.registrations[reg.RegistrationID]
	if !ok || current.Version != reg.Version-1 {
		return interfaces.ErrVersionConflict
	}
	r.store.registrations[reg.RegistrationID] = *reg
	return nil
}

func (r *memoryRegistrationRepository) Commit(ctx context.Context, reg *domain.PendingRegistration, enrollment *domain.Enrollment) error {
	r.store.mutex.Lock()
	defer r.store.mutex.Unlock()

	if err := r.store.commitErr; err != nil {
		r.store.commitErr = nil
		return err
	}

	course, ok := r.store.courses[reg.CourseID]
	if !ok {
		return interfaces.ErrCapacityExceeded
	}
	confirmed, _ := r.store.heldSeatsLocked(reg.CourseID)
	if confirmed >= course.Capacity {
		return interfaces.ErrCapacityExceeded
	}

	current, ok := r.store.registrations[reg.RegistrationID]
	if !ok || current.Version != reg.Version-1 || current.Status != domain.StatusAwaitingPayment {
		return interfaces.ErrVersionConflict
	}
	for _, e := range r.store.enrollments {
		if e.StudentID == enrollment.StudentID && e.CourseID == enrollment.CourseID {
			return interfaces.ErrAlreadyEnrolled
		}
	}

	current.Status = domain.StatusConfirmed
	current.Version = reg.Version
	current.UpdatedAt = reg.UpdatedAt
	r.store.registrations[reg.RegistrationID] = current
	r.store.enrollments[enrollment.RegistrationID] = *enrollment
	return nil
}

func (r *memoryRegistrationRepository) GetEnrollmentByRegistrationID(ctx context.Context, id uuid.UUID) (*domain.Enrollment, error) {
	r.store.mutex.RLock()
	defer r.store.mutex.RUnlock()

	enrollment, ok := r.store.enrollments[id]
	if !ok {
		return nil, nil
	}
	return &enrollment, nil
}

func (r *memoryRegistrationRepository) CountInFlight(ctx context.Context, courseID int64) (int, error) {
	r.store.mutex.RLock()
	defer r.store.mutex.RUnlock()

	_, inFlight := r.store.heldSeatsLocked(courseID)
	return inFlight, nil
}

func (r *memoryRegistrationRepository) ListPastDeadline(ctx context.Context, now time.Time, limit int) ([]*domain.PendingRegistration, error) {
	r.store.mutex.RLock()
	defer r.store.mutex.RUnlock()

	var regs []*domain.PendingRegistration
	for _, reg := range r.store.registrations {
		if reg.Status.HoldsSeat() && reg.Expired(now) {
			found := reg
			regs = append(regs, &found)
		}
	}
	sort.Slice(regs, func(i, j int) bool {
		return regs[i].ExpiresAt.Before(regs[j].ExpiresAt)
	})
	if limit > 0 && len(regs) > limit {
		regs = regs[:limit]
	}
	return regs, nil
}

type memoryReconciliationRepository struct {
	store *MemoryStore
}

func (r *memoryReconciliationRepository) Create(ctx context.Context, failure *domain.ReconciliationFailure) error {
	r.store.mutex.Lock()
	defer r.store.mutex.Unlock()

	r.store.failures = append(r.store.failures, *failure)
	return nil
}

func (r *memoryReconciliationRepository) List(ctx context.Context, limit, offset int) ([]*domain.ReconciliationFailure, error) {
	r.store.mutex.RLock()
	defer r.store.mutex.RUnlock()

	failures := make([]*domain.ReconciliationFailure, 0, len(r.store.failures))
	for i := len(r.store.failures) - 1; i >= 0; i-- {
		f := r.store.failures[i]
		failures = append(failures, &f)
	}
	if offset >= len(failures) {
		return []*domain.ReconciliationFailure{}, nil
	}
	failures = failures[offset:]
	if limit > 0 && len(failures) > limit {
		failures = failures[:limit]
	}
	return failures, nil
}

type seenEvent struct {
	id string
	at time.Time
}

type memoryEventDeduplicator struct {
	store *MemoryStore
	ttl   time.Duration
	now   func() time.Time
}

func (d *memoryEventDeduplicator) MarkProcessed(ctx context.Context, eventID string) (bool, error) {
	d.store.mutex.Lock()
	defer d.store.mutex.Unlock()

	now := d.now()
	d.pruneLocked(now)

	if _, seen := d.store.events[eventID]; seen {
		return false, nil
	}
	d.store.events[eventID] = now
	d.store.eventOrder = append(d.store.eventOrder, seenEvent{id: eventID, at: now})
	return true, nil
}

func (d *memoryEventDeduplicator) Forget(ctx context.Context, eventID string) error {
	d.store.mutex.Lock()
	defer d.store.mutex.Unlock()

	delete(d.store.events, eventID)
	return nil
}

// pruneLocked drops ids older than ttl. eventOrder is in insertion order, so
// it stops at the first live entry. An entry whose id was forgotten and seen
// again is skipped without touching the newer mark.
func (d *memoryEventDeduplicator) pruneLocked(now time.Time) {
	cutoff := now.Add(-d.ttl)
	order := d.store.eventOrder
	i := 0
	for ; i < len(order) && !order[i].at.After(cutoff); i++ {
		if at, ok := d.store.events[order[i].id]; ok && at.Equal(order[i].at) {
			delete(d.store.events, order[i].id)
		}
	}
	if i > 0 {
		d.store.eventOrder = append([]seenEvent(nil), order[i:]...)
	}
}
