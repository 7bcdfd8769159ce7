// Package dsl provides a fluent builder for flow graphs.
//
// Flows normally arrive as JSON authored in a visual builder, but embedded
// callers and tests often want to declare a graph in Go. The builder produces
// the same domain.Flow shape the JSON loader does, with node Data kept as
// plain maps so DecodeConfig sees exactly what it would see after a JSON
// round-trip.
//
//	flow, err := dsl.New("welcome").
//		Node("trig").Trigger(domain.TriggerContains).Value("hi").Go("ask").
//		Node("ask").Question("What is your name?", "name").Go("greet").
//		Node("greet").Message("Nice to meet you, {{name}}!").
//		Build()
package dsl
