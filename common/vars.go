package common

var (
	Version = "dev"

	PackageName = "kvgateway"
)
