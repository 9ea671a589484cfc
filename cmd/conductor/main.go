// Command conductor assigns tasks to agents, runs them through tool
// adapters and keeps a searchable memory of what happened.
package main

func main() {
	Execute()
}
