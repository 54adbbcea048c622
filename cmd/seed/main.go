package main

import (
	"flag"
	"fmt"
	"log"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/ikkim/tabline-backend/config"
	"github.com/ikkim/tabline-backend/internal/app/model"
	"github.com/ikkim/tabline-backend/internal/app/repository"
	"github.com/ikkim/tabline-backend/internal/app/service"
	"github.com/ikkim/tabline-backend/internal/db"
	"github.com/ikkim/tabline-backend/pkg/redis"
)

// Recognized header cells, lower-cased. Column order in the sheet is free.
var restaurantColumns = map[string]string{
	"name":                 "name",
	"addr1":                "addr1",
	"address":              "addr1",
	"addr2":                "addr2",
	"city":                 "city",
	"state":                "state",
	"zip":                  "zip",
	"phone":                "phone",
	"omnivore_location_id": "location",
	"location_id":          "location",
	"stripe_account_id":    "stripe",
}

func main() {
	yes := flag.Bool("yes", false, "skip the confirmation prompt")
	staffEmail := flag.String("staff-email", "", "create an owner account for the restaurant in -staff-location")
	staffPassword := flag.String("staff-password", "", "password for -staff-email")
	staffName := flag.String("staff-name", "Owner", "display name for -staff-email")
	staffLocation := flag.String("staff-location", "", "omnivore location id of the owner's restaurant")
	flag.Parse()

	if flag.NArg() < 1 {
		log.Fatal("Usage: go run cmd/seed/main.go [flags] <xlsx_file_path>")
	}
	filePath := flag.Arg(0)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	if err := db.Initialize(&cfg.Database); err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		log.Fatal("Failed to run migrations:", err)
	}

	restaurantRepo := repository.NewRestaurantRepository(db.GetDB())

	fmt.Printf("Reading XLSX file: %s\n", filePath)
	restaurants, skipped, err := readRestaurantsFromXLSX(filePath)
	if err != nil {
		log.Fatal("Failed to read XLSX:", err)
	}
	fmt.Printf("Restaurants to import: %d (skipped %d rows)\n", len(restaurants), skipped)

	if !*yes {
		fmt.Print("Do you want to proceed with the import? (yes/no): ")
		var confirm string
		fmt.Scanln(&confirm)
		if confirm != "yes" && confirm != "y" {
			fmt.Println("Import cancelled.")
			return
		}
	}

	for i := range restaurants {
		if err := restaurantRepo.Upsert(&restaurants[i]); err != nil {
			log.Fatalf("Failed to import %q: %v", restaurants[i].Name, err)
		}
	}
	fmt.Println("Import completed successfully!")

	if *staffEmail == "" {
		return
	}

	restaurant, err := restaurantRepo.FindByLocationID(*staffLocation)
	if err != nil {
		log.Fatalf("No restaurant with location %q: %v", *staffLocation, err)
	}
	authService := service.NewAuthService(
		repository.NewUserRepository(db.GetDB()),
		redis.NewMemoryTokenStore(),
		cfg.JWT.Secret,
		cfg.JWT.AccessTokenExpiry,
		cfg.JWT.RefreshTokenExpiry,
	)
	user, err := authService.CreateStaff(restaurant.ID, *staffEmail, *staffPassword, *staffName, model.RoleOwner)
	if err != nil {
		log.Fatal("Failed to create owner:", err)
	}
	fmt.Printf("Owner %s created for %s\n", user.Email, restaurant.Name)
}

func readRestaurantsFromXLSX(filePath string) ([]model.Restaurant, int, error) {
	f, err := excelize.OpenFile(filePath)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open XLSX file: %w", err)
	}
	defer f.Close()

	sheetName := f.GetSheetName(0)
	if sheetName == "" {
		return nil, 0, fmt.Errorf("no sheets found in XLSX file")
	}

	rows, err := f.GetRows(sheetName)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read rows: %w", err)
	}
	if len(rows) < 2 {
		return nil, 0, fmt.Errorf("no data found in XLSX file")
	}

	index := make(map[string]int)
	for i, cell := range rows[0] {
		if field, ok := restaurantColumns[strings.ToLower(strings.TrimSpace(cell))]; ok {
			index[field] = i
		}
	}
	for _, required := range []string{"name", "location"} {
		if _, ok := index[required]; !ok {
			return nil, 0, fmt.Errorf("missing required column %q", required)
		}
	}

	get := func(row []string, field string) string {
		i, ok := index[field]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var restaurants []model.Restaurant
	seen := make(map[string]bool)
	skipped := 0
	for _, row := range rows[1:] {
		name := get(row, "name")
		location := get(row, "location")
		if name == "" || location == "" || seen[location] {
			skipped++
			continue
		}
		seen[location] = true

		restaurants = append(restaurants, model.Restaurant{
			Name:               name,
			Addr1:              get(row, "addr1"),
			Addr2:              get(row, "addr2"),
			City:               get(row, "city"),
			State:              strings.ToUpper(get(row, "state")),
			Zip:                get(row, "zip"),
			Phone:              get(row, "phone"),
			OmnivoreLocationID: location,
			StripeAccountID:    get(row, "stripe"),
		})
	}
	return restaurants, skipped, nil
}
