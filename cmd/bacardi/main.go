// Command bacardi analyzes builds of Java repositories and gates automated
// dependency fixes.
package main

func main() {
	Execute()
}
