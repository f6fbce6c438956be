// Package driverkit scaffolds instrument-driver projects by orchestrating
// the dotnet CLI and the driver repository script.
package driverkit

// Version is the driverkit release version.
const Version = "0.1.0"
