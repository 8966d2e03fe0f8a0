package audit

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// WindowQuery selects a page of entries.
type WindowQuery struct {
	From    time.Time
	To      time.Time
	Actor   string
	Subject string
	Offset  int
	Limit   int
}

// Repository reads stored audit entries.
type Repository interface {
	Window(ctx context.Context, q WindowQuery) ([]Entry, error)
}

// TimelineFilters holds the basic filters for the audit timeline.
type TimelineFilters struct {
	From     time.Time
	To       time.Time
	Actor    string
	Subject  string
	Page     int
	PageSize int
}

// PagingInfo stores simple pagination metadata.
type PagingInfo struct {
	Page     int
	HasNext  bool
	PageSize int
	PrevPage int
	NextPage int
}

// Result wraps a timeline page.
type Result struct {
	Entries []Entry
	Paging  PagingInfo
}

// Service pages through persisted audit entries.
type Service struct {
	repo Repository
}

// NewService builds a timeline service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Timeline fetches one page of entries.
func (s *Service) Timeline(ctx context.Context, filters TimelineFilters) (Result, error) {
	if s.repo == nil {
		return Result{}, fmt.Errorf("audit: repository not configured")
	}
	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 50 {
		pageSize = 50
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	entries, err := s.repo.Window(ctx, WindowQuery{
		From:    filters.From,
		To:      filters.To,
		Actor:   strings.TrimSpace(filters.Actor),
		Subject: strings.TrimSpace(filters.Subject),
		Offset:  (page - 1) * pageSize,
		Limit:   pageSize + 1,
	})
	if err != nil {
		return Result{}, err
	}
	hasNext := len(entries) > pageSize
	if hasNext {
		entries = entries[:pageSize]
	}
	paging := PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext}
	if page > 1 {
		paging.PrevPage = page - 1
	}
	if hasNext {
		paging.NextPage = page + 1
	}
	return Result{Entries: entries, Paging: paging}, nil
}
