package store

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"docvault/pkg/domain"
)

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.AutoMigrate(&UserModel{}, &DocumentModel{}, &ActivityModel{}, &IngestionModel{}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) CreateUser(u domain.User) (domain.User, error) {
	model := UserModel{
		Username:     u.Username,
		PasswordHash: u.PasswordHash,
		Name:         u.Name,
		Email:        u.Email,
		Role:         string(u.Role),
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.db.Create(&model).Error; err != nil {
		return domain.User{}, fmt.Errorf("create user: %w", err)
	}
	return userFromModel(model), nil
}

func (s *GormStore) GetUser(id int64) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

func (s *GormStore) GetUserByUsername(username string) (domain.User, bool, error) {
	return s.firstUser("username = ?", username)
}

func (s *GormStore) GetUserByEmail(email string) (domain.User, bool, error) {
	return s.firstUser("email = ?", email)
}

func (s *GormStore) firstUser(cond string, arg any) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.Order("id ASC").First(&model, cond, arg).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

func (s *GormStore) ListUsers() ([]domain.User, error) {
	var models []UserModel
	if err := s.db.Order("id ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.User, 0, len(models))
	for _, m := range models {
		res = append(res, userFromModel(m))
	}
	return res, nil
}

func (s *GormStore) UpdateUser(id int64, upd domain.UserUpdate) (domain.User, bool, error) {
	fields := map[string]any{}
	if upd.Username != nil {
		fields["username"] = *upd.Username
	}
	if upd.PasswordHash != nil {
		fields["password_hash"] = *upd.PasswordHash
	}
	if upd.Name != nil {
		fields["name"] = *upd.Name
	}
	if upd.Email != nil {
		fields["email"] = *upd.Email
	}
	if upd.Role != nil {
		fields["role"] = string(*upd.Role)
	}
	var model UserModel
	found := false
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&model, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}
		found = true
		if len(fields) == 0 {
			return nil
		}
		if err := tx.Model(&model).Updates(fields).Error; err != nil {
			return err
		}
		return tx.First(&model, "id = ?", id).Error
	})
	if err != nil || !found {
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

func (s *GormStore) DeleteUser(id int64) (bool, error) {
	res := s.db.Delete(&UserModel{}, "id = ?", id)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *GormStore) UserCount() (int, error) {
	var count int64
	if err := s.db.Model(&UserModel{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

func (s *GormStore) CreateDocument(d domain.Document) (domain.Document, error) {
	now := time.Now().UTC()
	model := DocumentModel{
		Name:       d.Name,
		Type:       d.Type,
		Size:       d.Size,
		Path:       d.Path,
		UserID:     d.UserID,
		Starred:    false,
		CreatedAt:  now,
		ModifiedAt: now,
	}
	if err := s.db.Create(&model).Error; err != nil {
		return domain.Document{}, fmt.Errorf("create document: %w", err)
	}
	return documentFromModel(model), nil
}

func (s *GormStore) GetDocument(id int64) (domain.Document, bool, error) {
	var model DocumentModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Document{}, false, nil
		}
		return domain.Document{}, false, err
	}
	return documentFromModel(model), true, nil
}

func (s *GormStore) ListDocuments() ([]domain.Document, error) {
	return s.listDocuments()
}

func (s *GormStore) ListDocumentsByOwner(userID int64) ([]domain.Document, error) {
	return s.listDocuments("user_id = ?", userID)
}

func (s *GormStore) listDocuments(conds ...any) ([]domain.Document, error) {
	var models []DocumentModel
	tx := s.db.Order("id ASC")
	if len(conds) > 0 {
		tx = tx.Where(conds[0], conds[1:]...)
	}
	if err := tx.Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Document, 0, len(models))
	for _, m := range models {
		res = append(res, documentFromModel(m))
	}
	return res, nil
}

func (s *GormStore) UpdateDocument(id int64, upd domain.DocumentUpdate) (domain.Document, bool, error) {
	fields := map[string]any{"modified_at": time.Now().UTC()}
	if upd.Name != nil {
		fields["name"] = *upd.Name
	}
	if upd.Type != nil {
		fields["type"] = *upd.Type
	}
	if upd.Size != nil {
		fields["size"] = *upd.Size
	}
	if upd.Path != nil {
		fields["path"] = *upd.Path
	}
	if upd.Starred != nil {
		fields["starred"] = *upd.Starred
	}
	var model DocumentModel
	found := false
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&model, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}
		found = true
		if err := tx.Model(&model).Updates(fields).Error; err != nil {
			return err
		}
		return tx.First(&model, "id = ?", id).Error
	})
	if err != nil || !found {
		return domain.Document{}, false, err
	}
	return documentFromModel(model), true, nil
}

func (s *GormStore) DeleteDocument(id int64) (bool, error) {
	res := s.db.Delete(&DocumentModel{}, "id = ?", id)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *GormStore) SetDocumentStarred(id int64, starred bool) (domain.Document, bool, error) {
	var model DocumentModel
	found := false
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&model, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}
		found = true
		if err := tx.Model(&model).Update("starred", starred).Error; err != nil {
			return err
		}
		return tx.First(&model, "id = ?", id).Error
	})
	if err != nil || !found {
		return domain.Document{}, false, err
	}
	return documentFromModel(model), true, nil
}

func (s *GormStore) CreateActivity(a domain.Activity) (domain.Activity, error) {
	model := ActivityModel{
		Type:       a.Type,
		DocumentID: a.DocumentID,
		UserID:     a.UserID,
		Details:    a.Details,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.db.Create(&model).Error; err != nil {
		return domain.Activity{}, fmt.Errorf("create activity: %w", err)
	}
	return activityFromModel(model), nil
}

func (s *GormStore) ListActivities(limit int) ([]domain.Activity, error) {
	return s.listActivities(limit)
}

func (s *GormStore) ListUserActivities(userID int64, limit int) ([]domain.Activity, error) {
	return s.listActivities(limit, "user_id = ?", userID)
}

func (s *GormStore) listActivities(limit int, conds ...any) ([]domain.Activity, error) {
	var models []ActivityModel
	// Secondary id ordering keeps timestamp ties in insertion order.
	tx := s.db.Order("created_at DESC").Order("id ASC")
	if len(conds) > 0 {
		tx = tx.Where(conds[0], conds[1:]...)
	}
	if limit > 0 {
		tx = tx.Limit(limit)
	}
	if err := tx.Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Activity, 0, len(models))
	for _, m := range models {
		res = append(res, activityFromModel(m))
	}
	return res, nil
}

func (s *GormStore) CreateIngestion(i domain.Ingestion) (domain.Ingestion, error) {
	model := IngestionModel{
		DocumentID: i.DocumentID,
		UserID:     i.UserID,
		Status:     string(i.Status),
		Logs:       i.Logs,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.db.Create(&model).Error; err != nil {
		return domain.Ingestion{}, fmt.Errorf("create ingestion: %w", err)
	}
	return ingestionFromModel(model), nil
}

func (s *GormStore) GetIngestion(id int64) (domain.Ingestion, bool, error) {
	var model IngestionModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Ingestion{}, false, nil
		}
		return domain.Ingestion{}, false, err
	}
	return ingestionFromModel(model), true, nil
}

func (s *GormStore) ListIngestions() ([]domain.Ingestion, error) {
	var models []IngestionModel
	if err := s.db.Order("created_at DESC").Order("id ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Ingestion, 0, len(models))
	for _, m := range models {
		res = append(res, ingestionFromModel(m))
	}
	return res, nil
}

// SetIngestionStatus applies a forward transition inside a transaction so a
// late timer can never move a terminal ingestion backward.
func (s *GormStore) SetIngestionStatus(id int64, status domain.IngestionStatus, logs string) (domain.Ingestion, bool, error) {
	var model IngestionModel
	found := false
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&model, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}
		found = true
		current := domain.IngestionStatus(model.Status)
		if !current.CanTransitionTo(status) {
			return nil
		}
		fields := map[string]any{"status": string(status)}
		if logs != "" {
			fields["logs"] = logs
		}
		if status.Terminal() && model.CompletedAt == nil {
			fields["completed_at"] = time.Now().UTC()
		}
		if err := tx.Model(&model).Updates(fields).Error; err != nil {
			return err
		}
		return tx.First(&model, "id = ?", id).Error
	})
	if err != nil || !found {
		return domain.Ingestion{}, false, err
	}
	return ingestionFromModel(model), true, nil
}

func userFromModel(m UserModel) domain.User {
	return domain.User{
		ID:           m.ID,
		Username:     m.Username,
		PasswordHash: m.PasswordHash,
		Name:         m.Name,
		Email:        m.Email,
		Role:         domain.UserRole(m.Role),
		CreatedAt:    m.CreatedAt,
	}
}

func documentFromModel(m DocumentModel) domain.Document {
	return domain.Document{
		ID:         m.ID,
		Name:       m.Name,
		Type:       m.Type,
		Size:       m.Size,
		Path:       m.Path,
		UserID:     m.UserID,
		Starred:    m.Starred,
		CreatedAt:  m.CreatedAt,
		ModifiedAt: m.ModifiedAt,
	}
}

func activityFromModel(m ActivityModel) domain.Activity {
	return domain.Activity{
		ID:         m.ID,
		Type:       m.Type,
		DocumentID: m.DocumentID,
		UserID:     m.UserID,
		Details:    m.Details,
		CreatedAt:  m.CreatedAt,
	}
}

func ingestionFromModel(m IngestionModel) domain.Ingestion {
	return domain.Ingestion{
		ID:          m.ID,
		DocumentID:  m.DocumentID,
		UserID:      m.UserID,
		Status:      domain.IngestionStatus(m.Status),
		Logs:        m.Logs,
		CreatedAt:   m.CreatedAt,
		CompletedAt: m.CompletedAt,
	}
}
