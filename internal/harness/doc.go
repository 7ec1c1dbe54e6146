// Package harness runs YAML scenarios of mutation requests against a real
// processor and store.
//
// # Scenario Format
//
//	name: salavat_completion
//	description: "Reaching the stop number completes and deactivates"
//	presets: presets.cue            # optional override, relative to the file
//	setup:
//	  - request: {type: start_khatm_salavat, group_id: 1, topic_id: 2}
//	flow:
//	  - request: {type: contribution, group_id: 1, topic_id: 2, user_id: 7, amount: 500, khatm_type: salavat}
//	    request_id: msg-1             # optional; repeat it to test deduplication
//	    expect:
//	      status: applied
//	      result: {snapshot: {current_total: 500}}
//	assertions:
//	  - type: trace_count
//	    kind: contribution
//	    status: applied
//	    count: 1
//	  - type: final_state
//	    table: topics
//	    where: {group_id: 1, topic_id: 2}
//	    expect: {current_total: 500}
//	  - type: ranking
//	    group_id: 1
//	    topic_id: 2
//	    ranking: [{user_id: 7, total: 500}]
//
// # Assertion Types
//
//   - trace_contains: a request of a kind with matching fields was submitted
//   - trace_order: the first requests of the listed kinds appear in order
//   - trace_count: a kind was submitted, or resolved with a status, N times
//   - final_state: one store row matches and carries the expected values
//   - ranking: a topic's full ranking, in order
//
// # Determinism
//
// Request IDs are "req-0001", "req-0002", ... and sequence numbers start at
// 1, so traces compare byte for byte against golden files in
// testdata/golden.
package harness
