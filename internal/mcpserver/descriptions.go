package mcpserver

// Tool descriptions with interpretation guidance for LLMs.
// Each description explains what the tool does, when to use it,
// how to interpret results, and what it returns.

func describeAnalyzeGraph() string {
	return `Builds the call graph of a Rust, Python, JavaScript or TypeScript tree and summarizes it.

USE WHEN:
- Getting oriented in an unfamiliar codebase
- Checking how much of the tree the resolver could link
- Comparing graph size before and after a refactor (pass revision)

INTERPRETING RESULTS:
- by_tier shows how call sites were resolved: same_file and import are precise,
  fuzzy matched a qualified type across files, name_only matched by simple name
  and may over-approximate
- unresolved_ratio above 0.25 means many calls could not be linked; results of
  the other tools are less reliable
- external counts calls into libraries outside the tree; they are not errors

METRICS RETURNED:
- files, functions, edges, skipped_files
- resolution: sites, resolved, unresolved, external, ambiguous, by_tier
- reachability: counts of entry points, live, public api, tests, test only, dead
- health_score (0-100)`
}

func describeFindCallers() string {
	return `Lists the functions that directly call a given function.

USE WHEN:
- Estimating the impact of changing a function signature
- Finding where a method is actually used before deleting it
- Tracing a bug back toward its entry point

INTERPRETING RESULTS:
- name matches the simple name (save) or the qualified name (Repo.save, Store::save);
  every definition with that name is reported separately
- call_type tells how the call happens: direct, delegate, pipeline (iterator or
  combinator closure), async (spawned task), callback (passed as a value),
  observer_dispatch (listener loop)
- An empty list means no caller was found inside the tree; the function may still
  be an entry point or public API

METRICS RETURNED:
- One entry per matching definition with its status and its callers
  (file, name, line, call_type)`
}

func describeFindCallees() string {
	return `Lists the functions a given function calls directly.

USE WHEN:
- Understanding what a function depends on
- Following a request path from a handler down to storage
- Checking that a wrapper actually delegates to the implementation

INTERPRETING RESULTS:
- Only calls resolved to definitions inside the tree appear; library calls are
  counted as external by analyze_graph and not listed here
- Calls made inside closures are attributed to the enclosing function
- call_type async marks calls made inside tokio::spawn and similar task spawns

METRICS RETURNED:
- One entry per matching definition with its status and its callees
  (file, name, line, call_type)`
}

func describeFindDeadCode() string {
	return `Finds functions nothing calls that are neither an entry point, public API,
external trait implementation nor test. Any caller, even one matched only by
name, keeps a function live.

USE WHEN:
- Cleaning up code before a major refactor
- Finding handlers orphaned by a removed route
- Reviewing what a feature removal left behind

INTERPRETING RESULTS:
- Confidence 0.0-1.0: higher means more likely truly unused
- Confidence >= 0.8 (High): private, no callers, no name-only ambiguity; safe to investigate removal
- Confidence 0.5-0.8 (Medium): exported, marked for FFI (no_mangle), or its name was matched ambiguously
- Below 0.5 (Low): several of the above combined, such as an exported FFI function
- Trait implementations, lifecycle methods and module-level singletons are kept live

METRICS RETURNED:
- dead: functions with file, line, reason, callers, confidence, confidence_level
- summary: counts per reachability status

Note: Reflection, string-based dispatch and external consumers can cause false positives.`
}

func describeValidateGraph() string {
	return `Checks the structural health of the call graph.

USE WHEN:
- Gating a change in CI on graph quality
- Deciding whether the other tools' answers can be trusted for this tree
- Finding functions that are neither called nor call anything

INTERPRETING RESULTS:
- health_score 80-100: graph is well connected and mostly resolved
- health_score 50-80: noticeable orphans or unresolved calls
- Below 50: resolution failed broadly; check languages and excluded paths
- Issue kinds: orphan, unresolved_ratio, unresolved_call, cfg_invariant, recursion_cycle
- has_issues ignores informational findings such as recursion cycles

METRICS RETURNED:
- has_issues
- report: health_score, issues (kind, severity, message, functions), stats`
}
