// Tracegen emits sample traces to a Jaeger agent over UDP, and can stand in
// for the agent while testing a deployment.
//
// Usage:
//
//	# Emit ten traces to the local agent
//	tracegen emit --traces 10
//
//	# Receive batches on the agent port and log a summary of each
//	tracegen listen --listen-addr 127.0.0.1:6831
package main

func main() {
	Execute()
}
