// Package population defines the types and contracts shared by the ETL stages.
package population
