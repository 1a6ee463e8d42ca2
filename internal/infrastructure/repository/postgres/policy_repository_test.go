package postgres

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/daehwan-dev/policy-assistant/internal/core/domain"
)

func newRepoWithMock(t *testing.T) (*PolicyRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return &PolicyRepository{db: db}, mock, func() { _ = db.Close() }
}

func policyRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "name", "region", "category", "overview",
		"apply_target", "support_description", "url", "extras",
	})
}

func TestGetByIDMapsRow(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT id, name, region, category").
		WithArgs(int64(507)).
		WillReturnRows(policyRows().AddRow(
			int64(507), "청년 창업 지원", "서울", "창업", "청년 예비창업자 지원 사업",
			"만 39세 이하", "최대 1억원", "https://example.go.kr/507",
			[]byte(`{"contact":"02-1234-5678"}`),
		))

	policy, err := repo.GetByID(context.Background(), 507)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if policy.ID != 507 || policy.Name != "청년 창업 지원" {
		t.Fatalf("unexpected policy: %+v", policy)
	}
	if policy.Region != "서울" || policy.SupportDescription != "최대 1억원" {
		t.Fatalf("unexpected policy fields: %+v", policy)
	}
	if policy.Extras["contact"] != "02-1234-5678" {
		t.Fatalf("unexpected extras: %+v", policy.Extras)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetByIDReturnsDomainNotFound(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT id, name, region, category").
		WithArgs(int64(999)).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), 999)
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrPolicyNotFound) {
		t.Fatalf("expected ErrPolicyNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetByIDHandlesNullColumns(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT id, name, region, category").
		WithArgs(int64(12)).
		WillReturnRows(policyRows().AddRow(
			int64(12), "수출 바우처", nil, nil, nil, nil, nil, nil, nil,
		))

	policy, err := repo.GetByID(context.Background(), 12)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if policy.Region != "" || policy.URL != "" || policy.Extras != nil {
		t.Fatalf("expected empty optional fields, got %+v", policy)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestLookupPoliciesSkipsMissingIDs(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT id, name, region, category").
		WithArgs(int64(1), int64(2), int64(3)).
		WillReturnRows(policyRows().
			AddRow(int64(1), "정책 하나", "부산", "고용", "", "", "", "", []byte(`{}`)).
			AddRow(int64(3), "정책 셋", "대구", "수출", "", "", "", "", []byte(`{}`)),
		)

	out, err := repo.LookupPolicies(context.Background(), []int64{1, 2, 3})
	if err != nil {
		t.Fatalf("LookupPolicies() error = %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 policies, got %d", len(out))
	}
	if _, present := out[2]; present {
		t.Fatalf("missing id must be absent, not zero-valued")
	}
	if out[3].Name != "정책 셋" {
		t.Fatalf("unexpected policy: %+v", out[3])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestLookupPoliciesEmptyInputShortCircuits(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	out, err := repo.LookupPolicies(context.Background(), nil)
	if err != nil {
		t.Fatalf("LookupPolicies() error = %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("expected empty map, got %d entries", len(out))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
