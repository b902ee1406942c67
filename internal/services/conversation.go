package services

import (
	"context"
	"strings"

	"github.com/moby/locker"
	"go.uber.org/zap"

	"github.com/lapig-ufg/pasto-legal/internal/apperror"
	"github.com/lapig-ufg/pasto-legal/internal/models"
	"github.com/lapig-ufg/pasto-legal/internal/pasture"
	"github.com/lapig-ufg/pasto-legal/internal/resolution"
)

// StatsComputer computes pasture statistics for a property.
type StatsComputer interface {
	Compute(ctx context.Context, property models.PropertyFeature) (*pasture.PastureStatsResult, error)
}

// ConversationService runs resolution operations against stored state. All
// operations on one conversation are serialized: load, transition and save
// happen under a per-conversation lock, including the registry round trip of
// a lookup.
type ConversationService struct {
	store      SessionStore
	resolver   *resolution.Resolver
	aggregator StatsComputer
	locks      *locker.Locker
	logr       *zap.Logger
}

func NewConversationService(store SessionStore, resolver *resolution.Resolver, aggregator StatsComputer, logr *zap.Logger) *ConversationService {
	return &ConversationService{
		store:      store,
		resolver:   resolver,
		aggregator: aggregator,
		locks:      locker.New(),
		logr:       logr,
	}
}

// State returns a copy of the stored state.
func (s *ConversationService) State(ctx context.Context, conversationID string) (*resolution.State, error) {
	if err := validateID(conversationID); err != nil {
		return nil, err
	}
	s.locks.Lock(conversationID)
	defer s.unlock(conversationID)
	return s.load(ctx, conversationID)
}

func (s *ConversationService) Lookup(ctx context.Context, conversationID string, in resolution.LookupInput) (*resolution.Outcome, error) {
	return s.apply(ctx, conversationID, "lookup", func(st *resolution.State) (*resolution.Outcome, error) {
		return s.resolver.Lookup(ctx, st, in)
	})
}

func (s *ConversationService) Confirm(ctx context.Context, conversationID string) (*resolution.Outcome, error) {
	return s.apply(ctx, conversationID, "confirm", s.resolver.ConfirmSingle)
}

func (s *ConversationService) Select(ctx context.Context, conversationID string, index int) (*resolution.Outcome, error) {
	return s.apply(ctx, conversationID, "select", func(st *resolution.State) (*resolution.Outcome, error) {
		return s.resolver.SelectFromList(st, index)
	})
}

func (s *ConversationService) Reject(ctx context.Context, conversationID string) (*resolution.Outcome, error) {
	return s.apply(ctx, conversationID, "reject", s.resolver.Reject)
}

func (s *ConversationService) ClearSelected(ctx context.Context, conversationID string) (*resolution.Outcome, error) {
	return s.apply(ctx, conversationID, "clear_selected", s.resolver.ClearSelected)
}

// ActiveProperty returns the confirmed property or NoActiveProperty.
func (s *ConversationService) ActiveProperty(ctx context.Context, conversationID string) (models.PropertyFeature, error) {
	st, err := s.State(ctx, conversationID)
	if err != nil {
		return models.PropertyFeature{}, err
	}
	return resolution.RequireSelected(st)
}

// PastureStats computes statistics for the confirmed property. The lock is
// released before the raster queries since they never touch the state.
func (s *ConversationService) PastureStats(ctx context.Context, conversationID string) (*pasture.PastureStatsResult, models.PropertyFeature, error) {
	property, err := s.ActiveProperty(ctx, conversationID)
	if err != nil {
		return nil, models.PropertyFeature{}, err
	}
	res, err := s.aggregator.Compute(ctx, property)
	if err != nil {
		return nil, property, err
	}
	return res, property, nil
}

func (s *ConversationService) apply(ctx context.Context, conversationID, op string, fn func(*resolution.State) (*resolution.Outcome, error)) (*resolution.Outcome, error) {
	if err := validateID(conversationID); err != nil {
		return nil, err
	}
	s.locks.Lock(conversationID)
	defer s.unlock(conversationID)

	st, err := s.load(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	before := st.Mode()

	out, err := fn(st)
	if err != nil {
		s.logr.Info("resolution operation refused",
			zap.String("conversation_id", conversationID),
			zap.String("op", op),
			zap.String("kind", string(apperror.KindOf(err))))
		return nil, err
	}

	if err := s.store.Save(ctx, conversationID, st); err != nil {
		s.logr.Error("failed to save conversation state", zap.String("conversation_id", conversationID), zap.Error(err))
		return nil, apperror.New(apperror.Internal, "failed to save conversation state", err)
	}

	s.logr.Info("resolution transition",
		zap.String("conversation_id", conversationID),
		zap.String("op", op),
		zap.String("from", string(before)),
		zap.String("to", string(st.Mode())),
		zap.String("status", string(out.Status)))
	return out, nil
}

func (s *ConversationService) load(ctx context.Context, conversationID string) (*resolution.State, error) {
	st, err := s.store.Load(ctx, conversationID)
	if err != nil {
		s.logr.Error("failed to load conversation state", zap.String("conversation_id", conversationID), zap.Error(err))
		return nil, apperror.New(apperror.Internal, "failed to load conversation state", err)
	}
	return st, nil
}

func (s *ConversationService) unlock(conversationID string) {
	if err := s.locks.Unlock(conversationID); err != nil {
		s.logr.Error("conversation lock released twice", zap.String("conversation_id", conversationID), zap.Error(err))
	}
}

func validateID(conversationID string) error {
	if strings.TrimSpace(conversationID) == "" {
		return apperror.New(apperror.InvalidInput, "conversation id is required", nil)
	}
	return nil
}
