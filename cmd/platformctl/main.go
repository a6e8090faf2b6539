// Command platformctl is the operator CLI for PlatformX: migrations, catalog
// seeding, API key bootstrap and subscription grants.
package main

func main() {
	Execute()
}
