package version

// String is the current version of metis.
const String = "0.3.0"

// BuildVersion returns the version string for display.
func BuildVersion() string {
	return "metis version " + String
}

// APIVersion returns just the version number for API responses.
func APIVersion() string {
	return String
}
