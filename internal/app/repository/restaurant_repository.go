package repository

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ikkim/tabline-backend/internal/app/model"
)

type RestaurantRepository interface {
	Create(restaurant *model.Restaurant) error
	Upsert(restaurant *model.Restaurant) error
	FindByID(id uint) (*model.Restaurant, error)
	FindByLocationID(locationID string) (*model.Restaurant, error)
	List() ([]model.Restaurant, error)
}

type restaurantRepository struct {
	db *gorm.DB
}

func NewRestaurantRepository(db *gorm.DB) RestaurantRepository {
	return &restaurantRepository{db: db}
}

func (r *restaurantRepository) Create(restaurant *model.Restaurant) error {
	return r.db.Create(restaurant).Error
}

// Upsert inserts or updates by POS location id.
func (r *restaurantRepository) Upsert(restaurant *model.Restaurant) error {
	return r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "omnivore_location_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"name", "addr1", "addr2", "city", "state", "zip", "phone", "stripe_account_id", "updated_at",
		}),
	}).Create(restaurant).Error
}

func (r *restaurantRepository) FindByID(id uint) (*model.Restaurant, error) {
	var restaurant model.Restaurant
	if err := r.db.First(&restaurant, id).Error; err != nil {
		return nil, err
	}
	return &restaurant, nil
}

func (r *restaurantRepository) FindByLocationID(locationID string) (*model.Restaurant, error) {
	var restaurant model.Restaurant
	if err := r.db.Where("omnivore_location_id = ?", locationID).First(&restaurant).Error; err != nil {
		return nil, err
	}
	return &restaurant, nil
}

func (r *restaurantRepository) List() ([]model.Restaurant, error) {
	var restaurants []model.Restaurant
	err := r.db.Order("name ASC").Find(&restaurants).Error
	return restaurants, err
}
