package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ikkim/tabline-backend/internal/app/model"
	"github.com/ikkim/tabline-backend/internal/db"
)

type linkFixture struct {
	db         *gorm.DB
	repo       TicketLinkRepository
	member     *model.Member
	restaurant *model.Restaurant
}

func setupLinkTest(t *testing.T) *linkFixture {
	testDB, err := db.SetupTestDB()
	require.NoError(t, err)
	t.Cleanup(func() { db.CleanupTestDB(testDB) })

	restaurant := &model.Restaurant{
		Name:               "Harbor Grill",
		Addr1:              "1 Pier Rd",
		City:               "Portland",
		State:              "ME",
		Zip:                "04101",
		Phone:              "207-555-0100",
		OmnivoreLocationID: "loc-harbor",
		StripeAccountID:    "acct_harbor",
	}
	require.NoError(t, testDB.Create(restaurant).Error)

	member := &model.Member{
		Number:   "SMIT0001",
		LastName: "Smith",
		Customer: model.Customer{FirstName: "Ann", LastName: "Smith", Phone: "+12075550111"},
	}
	require.NoError(t, testDB.Create(member).Error)

	return &linkFixture{
		db:         testDB,
		repo:       NewTicketLinkRepository(testDB),
		member:     member,
		restaurant: restaurant,
	}
}

func (f *linkFixture) create(t *testing.T, ticketID string, status model.TicketLinkStatus) *model.TicketLink {
	now := time.Now()
	link := &model.TicketLink{
		MemberID:     f.member.ID,
		RestaurantID: f.restaurant.ID,
		TicketID:     ticketID,
		TicketNumber: "12",
		Status:       status,
	}
	if status != model.TicketLinkPending {
		link.OpenedAt = &now
	}
	require.NoError(t, f.repo.Create(link))
	return link
}
