// Package harness runs kernel scenarios and compares their traces with
// golden files.
//
// A scenario is a YAML file that configures a cluster, creates tasks and
// objects, and then runs directives step by step:
//
//	name: inherit_boost
//	description: "the owner of an inherit mutex runs at its waiter's priority"
//	tasks:
//	  - { name: LOW, priority: 20 }
//	  - { name: HIGH, priority: 5 }
//	objects:
//	  - { kind: semaphore, name: MTX, count: 1, attributes: [binary, priority, inherit] }
//	steps:
//	  - { task: LOW, do: obtain, object: MTX, expect: SUCCESSFUL }
//	  - { task: HIGH, do: obtain, object: MTX, expect: BLOCKED }
//	  - { task: LOW, do: check, expect_priority: 5 }
//	  - { task: LOW, do: release, object: MTX, expect: SUCCESSFUL }
//	  - { task: HIGH, do: await, expect: SUCCESSFUL }
//	assertions:
//	  - { type: event_count, kind: obtain, count: 2 }
//
// # Determinism
//
// The cluster runs with manual clocks and its MP receive servers are not
// started: the harness polls every node's inbox itself. Each directive
// runs on its own goroutine, and a step ends when the directive has
// returned or its task is blocked with nothing left in flight anywhere in
// the cluster. A blocked directive is collected by a later await step.
//
// The golden trace holds the step outcomes in step order and the final
// priorities and counts. The journal, an in-memory SQLite store with a
// fixed run id and a deterministic sequencer, backs the count assertions.
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/inherit_boost.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(scenario)
package harness
