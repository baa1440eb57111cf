package devserver

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/ecochallenge/ecoauth/password"
)

var (
	errEmailTaken    = errors.New("user with this email already exists.")
	errUsernameTaken = errors.New("A user with that username already exists.")
	errBadLogin      = errors.New("No active account found with the given credentials")
)

// User is an account held by the server.
type User struct {
	ID                   int       `json:"id"`
	Username             string    `json:"username"`
	Email                string    `json:"email"`
	FirstName            string    `json:"first_name"`
	LastName             string    `json:"last_name"`
	Bio                  string    `json:"bio"`
	City                 string    `json:"city"`
	Country              string    `json:"country"`
	Role                 string    `json:"role"`
	DateJoined           time.Time `json:"date_joined"`
	NotificationsEnabled bool      `json:"notifications_enabled"`

	passwordHash string
}

type userStore struct {
	mu      sync.RWMutex
	hasher  *password.Hasher
	nextID  int
	byID    map[int]*User
	byEmail map[string]*User
}

func newUserStore(hasher *password.Hasher) *userStore {
	return &userStore{
		hasher:  hasher,
		nextID:  1,
		byID:    make(map[int]*User),
		byEmail: make(map[string]*User),
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// create adds a user. Role defaults to "user".
func (s *userStore) create(username, email, plain, role string) (User, error) {
	hash, err := s.hasher.Hash(plain)
	if err != nil {
		return User{}, err
	}
	if role == "" {
		role = "user"
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := normalizeEmail(email)
	if _, ok := s.byEmail[key]; ok {
		return User{}, errEmailTaken
	}
	for _, u := range s.byID {
		if strings.EqualFold(u.Username, username) {
			return User{}, errUsernameTaken
		}
	}

	u := &User{
		ID:                   s.nextID,
		Username:             username,
		Email:                key,
		Role:                 role,
		DateJoined:           time.Now().UTC(),
		NotificationsEnabled: true,
		passwordHash:         hash,
	}
	s.nextID++
	s.byID[u.ID] = u
	s.byEmail[key] = u
	return *u, nil
}

// authenticate checks email and password. Unknown emails and wrong passwords
// fail the same way.
func (s *userStore) authenticate(email, plain string) (User, error) {
	s.mu.RLock()
	u, ok := s.byEmail[normalizeEmail(email)]
	var snapshot User
	if ok {
		snapshot = *u
	}
	s.mu.RUnlock()
	if !ok {
		return User{}, errBadLogin
	}

	match, err := s.hasher.Verify(plain, snapshot.passwordHash)
	if err != nil {
		return User{}, err
	}
	if !match {
		return User{}, errBadLogin
	}
	return snapshot, nil
}

func (s *userStore) get(id int) (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.byID[id]
	if !ok {
		return User{}, false
	}
	return *u, true
}

func (s *userStore) exists(email string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byEmail[normalizeEmail(email)]
	return ok
}

// profilePatch lists the fields a user may change about themselves.
type profilePatch struct {
	FirstName            *string `json:"first_name"`
	LastName             *string `json:"last_name"`
	Bio                  *string `json:"bio"`
	City                 *string `json:"city"`
	Country              *string `json:"country"`
	NotificationsEnabled *bool   `json:"notifications_enabled"`
}

func (s *userStore) update(id int, p profilePatch) (User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return User{}, false
	}
	if p.FirstName != nil {
		u.FirstName = *p.FirstName
	}
	if p.LastName != nil {
		u.LastName = *p.LastName
	}
	if p.Bio != nil {
		u.Bio = *p.Bio
	}
	if p.City != nil {
		u.City = *p.City
	}
	if p.Country != nil {
		u.Country = *p.Country
	}
	if p.NotificationsEnabled != nil {
		u.NotificationsEnabled = *p.NotificationsEnabled
	}
	return *u, true
}
