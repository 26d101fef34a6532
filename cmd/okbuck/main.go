// okbuck removes BUCK files left behind by projects that a generator no
// longer produces.
package main

import "github.com/Beerjiw/okbuck/cmd/okbuck/internal/cli"

func main() {
	cli.Execute()
}
