package trust

// DefaultTable returns the built-in source table.
func DefaultTable() Table {
	return Table{
		Baseline: DefaultBaseline,
		Sources: map[SourceID]Source{
			// Grading services: authoritative for certification data, slightly
			// less so for grade unless the coin is already in their holder.
			"ngc": {
				Default: 90,
				Fields:  map[string]int{"grade": 85},
				Boosts:  []Boost{{Field: "grade", When: "certified", Delta: 10}},
			},
			"pcgs": {
				Default: 90,
				Fields:  map[string]int{"grade": 85},
				Boosts:  []Boost{{Field: "grade", When: "certified", Delta: 10}},
			},

			// Auction houses with physical handling of the coin.
			"cng":               {Default: 70},
			"heritage":          {Default: 70},
			"stacks_and_bowers": {Default: 70},
			"nomos":             {Default: 70},
			"roma_numismatics":  {Default: 65},

			// Catalog lookups.
			"ocre":    {Default: 75, Fields: map[string]int{"references": 85}},
			"numista": {Default: 60},

			// Aggregators and marketplaces.
			"acsearch": {Default: 55},
			"vcoins":   {Default: 45},
			"ebay":     {Default: 25, Boosts: []Boost{{When: "seller_verified", Delta: 10}}},

			// Automated extraction.
			"scraper": {Default: 40},
			"ocr":     {Default: 35, Boosts: []Boost{{When: "low_confidence", Delta: -10}}},
		},
		Aliases: map[string]SourceID{
			"classical_numismatic_group":        "cng",
			"numismatic_guaranty_company":       "ngc",
			"numismatic_guaranty_corporation":   "ngc",
			"professional_coin_grading_service": "pcgs",
			"heritage_auctions":                 "heritage",
			"ha_com":                            "heritage",
			"stacks":                            "stacks_and_bowers",
			"roma":                              "roma_numismatics",
			"online_coins_of_the_roman_empire":  "ocre",
			"ebay_com":                          "ebay",
		},
	}
}
