// Package profile persists the per-device user profile and derives the
// summaries and queries built from it.
package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/DonggunSe0/aibbot/internal/domain"
)

// StorageKey is the key the profile record is stored under in each
// device's namespace.
const StorageKey = "userInfo"

// BirthdateLayout is the accepted child birthdate format.
const BirthdateLayout = "2006-01-02"

// Labels of the required fields, as shown to the user.
const (
	LabelRegion   = "거주 지역"
	LabelHasChild = "자녀 유무"
)

// UnregisteredLabel is the summary of an empty profile.
const UnregisteredLabel = "정보 미등록"

// PersonalizedSuffix is appended to the profile summary to form a
// personalized chat query.
const PersonalizedSuffix = "내 상황에 맞는 정책을 찾아주세요"

var (
	ErrInvalidRegion    = errors.New("invalid region")
	ErrInvalidHasChild  = errors.New("invalid hasChild value")
	ErrInvalidAsset     = errors.New("invalid asset range")
	ErrInvalidGender    = errors.New("invalid child gender")
	ErrInvalidBirthdate = errors.New("invalid child birthdate")
	ErrInvalidOption    = errors.New("invalid option value")
)

// KV is the persistence primitive the store is built on.
type KV interface {
	GetValue(ctx context.Context, namespace, key string) (string, bool, error)
	PutValue(ctx context.Context, namespace, key, value string) error
}

// Listener receives the saved profile after every successful Save.
type Listener func(p domain.UserProfile)

// Store loads and saves profiles and fans out change notifications.
type Store struct {
	kv  KV
	now func() time.Time

	mu     sync.Mutex
	nextID uint64
	subs   map[string]map[uint64]Listener
}

// NewStore creates a profile store over kv.
func NewStore(kv KV) *Store {
	return &Store{
		kv:   kv,
		now:  time.Now,
		subs: make(map[string]map[uint64]Listener),
	}
}

// Load returns the device's persisted profile. A missing, unreadable or
// malformed record yields an empty profile; the failure is only logged.
func (s *Store) Load(ctx context.Context, deviceID string) domain.UserProfile {
	raw, ok, err := s.kv.GetValue(ctx, deviceID, StorageKey)
	if err != nil {
		slog.Warn("Failed to read profile, using empty profile", "device_id", deviceID, "error", err)
		return domain.UserProfile{}
	}
	if !ok || strings.TrimSpace(raw) == "" {
		return domain.UserProfile{}
	}

	var p domain.UserProfile
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		slog.Warn("Malformed profile record, using empty profile", "device_id", deviceID, "error", err)
		return domain.UserProfile{}
	}
	return p
}

// Save normalizes and validates p, replaces the stored record and notifies
// the device's subscribers. It returns the profile as stored.
func (s *Store) Save(ctx context.Context, deviceID string, p domain.UserProfile) (domain.UserProfile, error) {
	p = Normalize(p)
	if err := s.check(p); err != nil {
		return domain.UserProfile{}, err
	}

	data, err := json.Marshal(p)
	if err != nil {
		return domain.UserProfile{}, fmt.Errorf("marshal profile: %w", err)
	}
	if err := s.kv.PutValue(ctx, deviceID, StorageKey, string(data)); err != nil {
		return domain.UserProfile{}, fmt.Errorf("save profile: %w", err)
	}

	slog.Info("Profile saved", "device_id", deviceID, "region", p.Region, "has_child", p.HasChild, "children", len(p.Children))
	s.notify(deviceID, p)
	return p.Clone(), nil
}

// Subscribe registers fn for the device's profile changes. The returned
// function removes the subscription.
func (s *Store) Subscribe(deviceID string, fn Listener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	id := s.nextID
	if s.subs[deviceID] == nil {
		s.subs[deviceID] = make(map[uint64]Listener)
	}
	s.subs[deviceID][id] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs[deviceID], id)
		if len(s.subs[deviceID]) == 0 {
			delete(s.subs, deviceID)
		}
	}
}

func (s *Store) notify(deviceID string, p domain.UserProfile) {
	s.mu.Lock()
	listeners := make([]Listener, 0, len(s.subs[deviceID]))
	for _, fn := range s.subs[deviceID] {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(p.Clone())
	}
}

// Normalize trims fields and keeps children only when HasChild is "유",
// dropping rows with neither gender nor birthdate.
func Normalize(p domain.UserProfile) domain.UserProfile {
	out := p.Clone()
	out.Region = strings.TrimSpace(out.Region)
	out.HasChild = strings.TrimSpace(out.HasChild)
	out.Asset = strings.TrimSpace(out.Asset)

	children := make([]domain.Child, 0, len(out.Children))
	if out.HasChild == domain.HasChildYes {
		for _, c := range out.Children {
			c.Gender = strings.TrimSpace(c.Gender)
			c.Birthdate = strings.TrimSpace(c.Birthdate)
			if c.IsEmpty() {
				continue
			}
			children = append(children, c)
		}
	}
	out.Children = children
	return out
}

func (s *Store) check(p domain.UserProfile) error {
	if !domain.IsValidRegion(p.Region) {
		return fmt.Errorf("%w: %q", ErrInvalidRegion, p.Region)
	}
	if p.HasChild != "" && p.HasChild != domain.HasChildYes && p.HasChild != domain.HasChildNo {
		return fmt.Errorf("%w: %q", ErrInvalidHasChild, p.HasChild)
	}
	if !domain.IsValidAsset(p.Asset) {
		return fmt.Errorf("%w: %q", ErrInvalidAsset, p.Asset)
	}

	options := []struct {
		field string
		set   []string
		value string
	}{
		{"income", domain.IncomeRanges, p.Income},
		{"familyType", domain.FamilyTypes, p.FamilyType},
		{"hasDisability", domain.YesNo, p.HasDisability},
		{"isPregnant", domain.YesNo, p.IsPregnant},
		{"jobStatus", domain.JobStatuses, p.JobStatus},
		{"housingType", domain.HousingTypes, p.HousingType},
	}
	for _, o := range options {
		if !domain.IsValidOption(o.set, o.value) {
			return fmt.Errorf("%w: %s=%q", ErrInvalidOption, o.field, o.value)
		}
	}

	today := s.now()
	for i, c := range p.Children {
		if c.Gender != "" && c.Gender != domain.GenderMale && c.Gender != domain.GenderFemale {
			return fmt.Errorf("%w: child %d: %q", ErrInvalidGender, i+1, c.Gender)
		}
		if c.Birthdate == "" {
			continue
		}
		born, err := time.ParseInLocation(BirthdateLayout, c.Birthdate, today.Location())
		if err != nil {
			return fmt.Errorf("%w: child %d: %q", ErrInvalidBirthdate, i+1, c.Birthdate)
		}
		if born.After(today) {
			return fmt.Errorf("%w: child %d: %q is in the future", ErrInvalidBirthdate, i+1, c.Birthdate)
		}
	}
	return nil
}

// Validation is the result of checking a profile for personalized search.
type Validation struct {
	Valid   bool     `json:"valid"`
	Missing []string `json:"missing,omitempty"`
	Message string   `json:"message,omitempty"`
}

// Validate reports whether the fields required for personalized search,
// region and hasChild, are both set. Other fields never affect the result.
func Validate(p domain.UserProfile) Validation {
	var missing []string
	if p.Region == "" {
		missing = append(missing, LabelRegion)
	}
	if p.HasChild == "" {
		missing = append(missing, LabelHasChild)
	}
	if len(missing) == 0 {
		return Validation{Valid: true}
	}
	return Validation{
		Missing: missing,
		Message: "다음 정보가 필요합니다: " + strings.Join(missing, ", "),
	}
}

// Summarize renders a short description such as "강남구 거주, 자녀 2명".
func Summarize(p domain.UserProfile) string {
	var parts []string
	if p.Region != "" {
		parts = append(parts, p.Region+" 거주")
	}
	switch p.HasChild {
	case domain.HasChildYes:
		parts = append(parts, fmt.Sprintf("자녀 %d명", len(p.Children)))
	case domain.HasChildNo:
		parts = append(parts, "자녀 없음")
	}
	if len(parts) == 0 {
		return UnregisteredLabel
	}
	return strings.Join(parts, ", ")
}

// PersonalizedQuery builds the chat message sent for a personalized search.
func PersonalizedQuery(p domain.UserProfile) string {
	return fmt.Sprintf("[%s] %s", Summarize(p), PersonalizedSuffix)
}
