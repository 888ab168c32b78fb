package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

func setupTokenMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create mock database: %v", err)
	}

	gormDB, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      db,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{})
	if err != nil {
		t.Fatalf("Failed to create GORM database: %v", err)
	}

	return gormDB, mock
}

func TestTokenRepository_Replace(t *testing.T) {
	db, mock := setupTokenMockDB(t)
	defer func() {
		sqlDB, _ := db.DB()
		sqlDB.Close()
	}()

	repo := NewTokenRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM `push_tokens` WHERE user_key = \\?").
		WithArgs("user-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM `push_tokens` WHERE token = \\?").
		WithArgs("tok-abc").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO `push_tokens`").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := repo.Replace(context.Background(), "user-1", "tok-abc", "web")
	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unfulfilled expectations: %v", err)
	}
}

func TestTokenRepository_ReplaceRollsBackOnInsertFailure(t *testing.T) {
	db, mock := setupTokenMockDB(t)
	defer func() {
		sqlDB, _ := db.DB()
		sqlDB.Close()
	}()

	repo := NewTokenRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM `push_tokens` WHERE user_key = \\?").
		WithArgs("user-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM `push_tokens` WHERE token = \\?").
		WithArgs("tok-abc").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO `push_tokens`").
		WillReturnError(errors.New("duplicate entry"))
	mock.ExpectRollback()

	err := repo.Replace(context.Background(), "user-1", "tok-abc", "web")
	if err == nil {
		t.Error("Expected error, got nil")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unfulfilled expectations: %v", err)
	}
}

func TestTokenRepository_GetByUser(t *testing.T) {
	db, mock := setupTokenMockDB(t)
	defer func() {
		sqlDB, _ := db.DB()
		sqlDB.Close()
	}()

	repo := NewTokenRepository(db)

	rows := sqlmock.NewRows([]string{"id", "user_key", "token", "platform"}).
		AddRow(1, "user-1", "tok-abc", "android")

	mock.ExpectQuery("SELECT \\* FROM `push_tokens` WHERE user_key = \\? ORDER BY `push_tokens`.`id` LIMIT \\?").
		WithArgs("user-1", 1).
		WillReturnRows(rows)

	row, err := repo.GetByUser(context.Background(), "user-1")
	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if row == nil {
		t.Error("Expected token row, got nil")
		return
	}
	if row.Token != "tok-abc" || row.Platform != "android" {
		t.Errorf("Unexpected row %+v", row)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unfulfilled expectations: %v", err)
	}
}

func TestTokenRepository_GetByUserNotFound(t *testing.T) {
	db, mock := setupTokenMockDB(t)
	defer func() {
		sqlDB, _ := db.DB()
		sqlDB.Close()
	}()

	repo := NewTokenRepository(db)

	mock.ExpectQuery("SELECT \\* FROM `push_tokens` WHERE user_key = \\?").
		WithArgs("ghost", 1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_key", "token", "platform"}))

	row, err := repo.GetByUser(context.Background(), "ghost")
	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if row != nil {
		t.Errorf("Expected nil row, got %+v", row)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unfulfilled expectations: %v", err)
	}
}

func TestTokenRepository_ListByUsers(t *testing.T) {
	db, mock := setupTokenMockDB(t)
	defer func() {
		sqlDB, _ := db.DB()
		sqlDB.Close()
	}()

	repo := NewTokenRepository(db)

	rows := sqlmock.NewRows([]string{"id", "user_key", "token", "platform"}).
		AddRow(1, "user-1", "tok-a", "web").
		AddRow(2, "user-2", "tok-b", "ios")

	mock.ExpectQuery("SELECT \\* FROM `push_tokens` WHERE user_key IN \\(\\?,\\?,\\?\\)").
		WithArgs("user-1", "user-2", "user-3").
		WillReturnRows(rows)

	result, err := repo.ListByUsers(context.Background(), []string{"user-1", "user-2", "user-3"})
	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if len(result) != 2 {
		t.Errorf("Expected 2 rows, got %d", len(result))
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unfulfilled expectations: %v", err)
	}
}

func TestTokenRepository_ListByUsersEmpty(t *testing.T) {
	db, mock := setupTokenMockDB(t)
	defer func() {
		sqlDB, _ := db.DB()
		sqlDB.Close()
	}()

	repo := NewTokenRepository(db)

	result, err := repo.ListByUsers(context.Background(), nil)
	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if result != nil {
		t.Errorf("Expected nil result, got %+v", result)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unfulfilled expectations: %v", err)
	}
}
