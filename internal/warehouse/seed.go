package warehouse

import "github.com/JakeFAU/world-population-etl/internal/population"

// Batch sources selectable through configuration.
const (
	SourceSeed    = "seed"
	SourceScraped = "scraped"
)

var seedRecords = []population.Record{
	{Region: "Asia", Density: 104.1, Population: 4641.0, MostPopCountry: "1,439,090,595 – India", MostPopCity: "13,515,000 – Tokyo Metropolis(37,400,000 – G...)"},
	{Region: "Africa", Density: 44.4, Population: 1340.0, MostPopCountry: "0,211,401,000 – Nigeria", MostPopCity: "09,500,000 – Cairo(20,076,000 – Greater Cairo)"},
	{Region: "Europe", Density: 73.4, Population: 747.0, MostPopCountry: "0,146,171,000 – Russia, approx. 110 million i...", MostPopCity: "13,200,000 – Moscow(20,004,000 – Moscow metr...)"},
	{Region: "Latin America", Density: 24.1, Population: 653.0, MostPopCountry: "0,214,103,000 – Brazil", MostPopCity: "12,252,000 – São Paulo City(21,650,000 – São...)"},
	{Region: "Northern America", Density: 14.9, Population: 368.0, MostPopCountry: "0,332,909,000 – United States", MostPopCity: "08,804,000 – New York City(23,582,649 – New ...)"},
	{Region: "Oceania", Density: 5.0, Population: 42.0, MostPopCountry: "0,025,917,000 – Australia", MostPopCity: "05,367,000 – Sydney"},
	{Region: "Antarctica", Density: 0.0, Population: 0.0, MostPopCountry: "N/A", MostPopCity: "00,001,258 – McMurdo Station"},
}

// SeedRecords returns a copy of the fixed seven-region batch.
func SeedRecords() []population.Record {
	out := make([]population.Record, len(seedRecords))
	copy(out, seedRecords)
	return out
}

// SelectBatch picks the records to load for the given source.
func SelectBatch(source string, scraped []population.Record) []population.Record {
	if source == SourceScraped {
		return scraped
	}
	return SeedRecords()
}
