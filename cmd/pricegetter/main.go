// Command pricegetter runs the retailer price lookup gateway.
package main

func main() {
	Execute()
}
