package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"identity-reconciler/internal/domain"
)

// Reconciler decides how an incoming (email, phoneNumber) probe relates to
// previously seen contacts and mutates the contact graph accordingly.
//
// Each probe runs inside one serializable transaction, additionally guarded
// by a per-key mutex over the probe's field values, so two concurrent probes
// for the same identity cannot both observe "no match" and create competing
// primaries.
type Reconciler struct {
	store domain.TxContactStore
	locks *KeyLock
	log   *zap.Logger
}

func NewReconciler(store domain.TxContactStore, log *zap.Logger) *Reconciler {
	return &Reconciler{store: store, locks: NewKeyLock(), log: log}
}

// Identify reconciles a probe and returns the consolidated view of the
// resulting cluster. Either fully succeeds or leaves no visible mutation.
func (s *Reconciler) Identify(ctx context.Context, email, phone *string) (*domain.ConsolidatedView, error) {
	email = normalize(email)
	phone = normalize(phone)
	if email == nil && phone == nil {
		return nil, domain.ErrInvalidProbe
	}

	unlock := s.locks.Lock(probeKeys(email, phone)...)
	defer unlock()

	var view *domain.ConsolidatedView
	err := s.store.InTx(ctx, func(store domain.ContactStore) error {
		v, err := s.reconcile(ctx, store, email, phone)
		view = v
		return err
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

func (s *Reconciler) reconcile(ctx context.Context, store domain.ContactStore, email, phone *string) (*domain.ConsolidatedView, error) {
	matches, err := store.FindByEmailOrPhone(ctx, email, phone)
	if err != nil {
		return nil, err
	}

	if len(matches) == 0 {
		c, err := store.Insert(ctx, email, phone, domain.LinkPrimary, nil)
		if err != nil {
			return nil, err
		}
		s.log.Info("created primary contact", zap.Uint("id", c.ID))
		return consolidate(c.ID, []domain.Contact{*c}), nil
	}

	// Resolve the distinct primaries reachable from the matches and load
	// each one's full cluster.
	seen := make(map[uint]struct{})
	var primaries []domain.Contact
	clusters := make(map[uint][]domain.Contact)
	for _, m := range matches {
		pid := m.PrimaryID()
		if _, ok := seen[pid]; ok {
			continue
		}
		seen[pid] = struct{}{}
		cl, err := store.FindCluster(ctx, pid)
		if err != nil {
			return nil, err
		}
		p := findByID(cl, pid)
		if p == nil {
			return nil, fmt.Errorf("contact %d links to missing primary %d: %w", m.ID, pid, domain.ErrNotFound)
		}
		primaries = append(primaries, *p)
		clusters[pid] = cl
	}

	// Oldest primary wins; ties break on the smaller id.
	root := primaries[0]
	for _, p := range primaries[1:] {
		if p.CreatedAt.Before(root.CreatedAt) ||
			(p.CreatedAt.Equal(root.CreatedAt) && p.ID < root.ID) {
			root = p
		}
	}

	// The probe bridged separate clusters: demote the losing primaries and
	// re-point their former secondaries at the root so no secondary ever
	// references a non-primary.
	for _, p := range primaries {
		if p.ID == root.ID {
			continue
		}
		for _, c := range clusters[p.ID] {
			if err := store.DemoteToSecondary(ctx, c.ID, root.ID); err != nil {
				return nil, err
			}
		}
		s.log.Info("merged clusters",
			zap.Uint("root", root.ID),
			zap.Uint("demoted", p.ID),
			zap.Int("repointed", len(clusters[p.ID])-1),
		)
	}

	cluster, err := store.FindCluster(ctx, root.ID)
	if err != nil {
		return nil, err
	}

	// A new row is needed only when no single contact in the cluster already
	// records the probe's exact (email, phone) combination; verbatim pairs
	// are a pure lookup.
	if !pairPresent(cluster, email, phone) {
		c, err := store.Insert(ctx, email, phone, domain.LinkSecondary, &root.ID)
		if err != nil {
			return nil, err
		}
		s.log.Info("created secondary contact",
			zap.Uint("id", c.ID), zap.Uint("primary", root.ID))
		cluster, err = store.FindCluster(ctx, root.ID)
		if err != nil {
			return nil, err
		}
	}

	return consolidate(root.ID, cluster), nil
}

// consolidate builds the view from a cluster already in creation order.
// The primary's email and phone lead their lists; duplicates keep their
// first-seen position.
func consolidate(primaryID uint, cluster []domain.Contact) *domain.ConsolidatedView {
	view := &domain.ConsolidatedView{
		PrimaryContactID:    primaryID,
		Emails:              []string{},
		PhoneNumbers:        []string{},
		SecondaryContactIDs: []uint{},
	}
	ordered := make([]domain.Contact, 0, len(cluster))
	if p := findByID(cluster, primaryID); p != nil {
		ordered = append(ordered, *p)
	}
	for _, c := range cluster {
		if c.ID != primaryID {
			ordered = append(ordered, c)
			view.SecondaryContactIDs = append(view.SecondaryContactIDs, c.ID)
		}
	}
	seenEmail := make(map[string]struct{})
	seenPhone := make(map[string]struct{})
	for _, c := range ordered {
		if c.Email != nil {
			if _, ok := seenEmail[*c.Email]; !ok {
				seenEmail[*c.Email] = struct{}{}
				view.Emails = append(view.Emails, *c.Email)
			}
		}
		if c.PhoneNumber != nil {
			if _, ok := seenPhone[*c.PhoneNumber]; !ok {
				seenPhone[*c.PhoneNumber] = struct{}{}
				view.PhoneNumbers = append(view.PhoneNumbers, *c.PhoneNumber)
			}
		}
	}
	return view
}

func findByID(cluster []domain.Contact, id uint) *domain.Contact {
	for i := range cluster {
		if cluster[i].ID == id {
			return &cluster[i]
		}
	}
	return nil
}

// pairPresent reports whether some contact already carries every present
// probe field verbatim: both fields when both are given, the single field
// otherwise. Absent probe fields constrain nothing.
func pairPresent(cluster []domain.Contact, email, phone *string) bool {
	for _, c := range cluster {
		if email != nil && (c.Email == nil || *c.Email != *email) {
			continue
		}
		if phone != nil && (c.PhoneNumber == nil || *c.PhoneNumber != *phone) {
			continue
		}
		return true
	}
	return false
}

func normalize(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

func probeKeys(email, phone *string) []string {
	keys := make([]string, 0, 2)
	if email != nil {
		keys = append(keys, "e:"+*email)
	}
	if phone != nil {
		keys = append(keys, "p:"+*phone)
	}
	return keys
}
