package devstore

import (
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-checkout/pkg/types"
)

func demoCatalog() []types.Product {
	return []types.Product{
		{ID: 1, Name: "Phone", Description: "6.1in display, 128GB", Price: decimal.RequireFromString("999.99"), Stock: 5},
		{ID: 2, Name: "Coffee Mug", Description: "Stoneware, 350ml", Price: decimal.RequireFromString("100.00"), Stock: 20},
		{ID: 3, Name: "Notebook", Description: "A5 dotted", Price: decimal.RequireFromString("50.00"), Stock: 40},
		{ID: 4, Name: "Headphones", Price: decimal.RequireFromString("1499.50"), Stock: 3},
		{ID: 5, Name: "Desk Lamp", Price: decimal.RequireFromString("30.00"), Stock: 0},
	}
}

func defaultAddress() types.Address {
	return types.Address{
		ID:          DefaultAddressID,
		Name:        "Asha Rao",
		PhoneNumber: "9800000000",
		HouseNo:     "12B",
		Landmark:    "Clock Tower",
		City:        "Pune",
		State:       "MH",
		PinCode:     "411001",
	}
}
