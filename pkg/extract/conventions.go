package extract

import (
	"path/filepath"
	"strings"
)

// IsTestFile reports whether a path follows a test file naming convention.
func IsTestFile(path string) bool {
	path = filepath.ToSlash(path)
	base := filepath.Base(path)
	return strings.HasSuffix(base, "_test.py") ||
		strings.HasPrefix(base, "test_") && strings.HasSuffix(base, ".py") ||
		base == "conftest.py" ||
		strings.Contains(base, ".test.") ||
		strings.Contains(base, ".spec.") ||
		strings.HasPrefix(path, "tests/") ||
		strings.HasPrefix(path, "benches/") ||
		strings.Contains(path, "/test/") ||
		strings.Contains(path, "/tests/") ||
		strings.Contains(path, "/benches/") ||
		strings.Contains(path, "/__tests__/")
}

// isEntryName applies the name-based entry-point conventions shared by all
// languages.
func isEntryName(name string) bool {
	if name == "main" || name == ModuleFunction {
		return true
	}
	return isHTTPHandler(name) || isEventHandler(name) || isLifecycleMethod(name)
}

func isHTTPHandler(name string) bool {
	for _, suffix := range []string{"Handler", "handler", "Endpoint", "endpoint", "Controller", "controller"} {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return name == "handle" || name == "serve" || name == "handler"
}

func isEventHandler(name string) bool {
	if strings.HasPrefix(name, "on_") && len(name) > 3 {
		return true
	}
	if strings.HasPrefix(name, "on") && len(name) > 2 && isUpper(name[2]) {
		return true
	}
	if strings.HasPrefix(name, "handle_") && len(name) > 7 {
		return true
	}
	if strings.HasPrefix(name, "handle") && len(name) > 6 && isUpper(name[6]) {
		return true
	}
	return false
}

var lifecycleMethods = map[string]bool{
	// Rust trait methods the compiler or std calls implicitly
	"new": true, "default": true, "drop": true, "fmt": true,
	"from": true, "clone": true, "deref": true, "deref_mut": true,
	"eq": true, "partial_cmp": true, "cmp": true, "hash": true,
	"next": true, "into_iter": true, "poll": true,
	"serialize": true, "deserialize": true,
	// Python
	"__init__": true, "__new__": true, "__del__": true, "__enter__": true, "__exit__": true,
	"__aenter__": true, "__aexit__": true, "__call__": true, "__repr__": true, "__str__": true,
	"__eq__": true, "__hash__": true, "__len__": true, "__iter__": true, "__next__": true,
	"__getitem__": true, "__setitem__": true, "__contains__": true,
	"setUp": true, "tearDown": true, "setUpClass": true, "tearDownClass": true,
	// JavaScript
	"constructor": true, "render": true, "toString": true, "toJSON": true,
	"componentDidMount": true, "componentWillUnmount": true, "componentDidUpdate": true,
	"connectedCallback": true, "disconnectedCallback": true,
}

func isLifecycleMethod(name string) bool {
	return lifecycleMethods[name]
}

// rustEntryAttribute reports attributes that make a function an entry point.
func rustEntryAttribute(attr string) bool {
	switch attrPath(attr) {
	case "tokio::main", "actix_web::main", "async_std::main", "rocket::main", "main",
		"no_mangle", "export_name", "wasm_bindgen", "pyfunction", "napi",
		"get", "post", "put", "delete", "patch", "head", "route", "handler",
		"rocket::get", "rocket::post", "actix_web::get", "actix_web::post":
		return true
	}
	return false
}

// rustTestAttribute reports attributes that mark test or bench functions.
func rustTestAttribute(attr string) bool {
	switch attrPath(attr) {
	case "test", "tokio::test", "async_std::test", "rstest", "bench", "test_case", "quickcheck":
		return true
	}
	return false
}

// attrPath strips the arguments from an attribute body: `tokio::main(flavor)`
// becomes `tokio::main`.
func attrPath(attr string) string {
	if i := strings.IndexAny(attr, "(= "); i >= 0 {
		attr = attr[:i]
	}
	return strings.TrimSpace(attr)
}

// pythonEntryDecorator reports decorators that register a function with a
// framework or runtime.
func pythonEntryDecorator(decorator string) bool {
	d := strings.TrimPrefix(decorator, "@")
	if i := strings.Index(d, "("); i >= 0 {
		d = d[:i]
	}
	last := d
	if i := strings.LastIndex(d, "."); i >= 0 {
		last = d[i+1:]
	}
	switch last {
	case "route", "get", "post", "put", "delete", "patch", "websocket", "api_view",
		"command", "group", "task", "shared_task", "receiver", "listener", "on_event",
		"handler", "callback", "hookimpl", "pyfunction", "def_extern", "validator",
		"field_validator", "model_validator", "cached_property", "property", "setter":
		return true
	}
	return false
}

func pythonTestDecorator(decorator string) bool {
	d := strings.TrimPrefix(decorator, "@")
	return strings.HasPrefix(d, "pytest.fixture") || strings.HasPrefix(d, "fixture") ||
		strings.HasPrefix(d, "pytest.mark")
}

// observerStems are collection-name stems that identify stored callback
// registries.
var observerStems = []string{"listener", "observer", "handler", "callback", "subscriber", "watcher", "hook"}

// isObserverCollection reports whether a field name looks like a registry of
// callbacks: it must contain a known stem and read as a collection.
func isObserverCollection(field string, extra []string) bool {
	name := strings.ToLower(strings.TrimLeft(field, "_"))
	for _, e := range extra {
		if name == strings.ToLower(e) {
			return true
		}
	}
	collection := strings.HasSuffix(name, "s") || strings.HasSuffix(name, "_list") ||
		strings.HasSuffix(name, "_set") || strings.HasSuffix(name, "list") ||
		strings.HasSuffix(name, "registry")
	if !collection {
		return false
	}
	for _, stem := range observerStems {
		if strings.Contains(name, stem) {
			return true
		}
	}
	return false
}

// asyncSpawners are call names whose arguments run on another task or thread.
var asyncSpawners = map[string]bool{
	"spawn": true, "spawn_blocking": true, "spawn_local": true, "block_on": true,
	"create_task": true, "ensure_future": true, "gather": true, "run_in_executor": true,
	"run_coroutine_threadsafe": true, "to_thread": true, "submit": true, "start_soon": true,
	"Thread": true, "Process": true, "apply_async": true,
	"setTimeout": true, "setInterval": true, "setImmediate": true, "queueMicrotask": true,
	"nextTick": true, "then": true,
}

// pipelineMethods are iterator and collection combinators taking callbacks.
var pipelineMethods = map[string]bool{
	"map": true, "filter": true, "filter_map": true, "flat_map": true, "for_each": true,
	"fold": true, "scan": true, "take_while": true, "skip_while": true, "any": true,
	"all": true, "find": true, "find_map": true, "position": true, "and_then": true,
	"or_else": true, "map_err": true, "unwrap_or_else": true, "inspect": true,
	"reduce": true, "sorted": true, "min": true, "max": true,
	"forEach": true, "flatMap": true, "some": true, "every": true, "findIndex": true,
	"sort": true, "sort_by": true, "sort_by_key": true,
}

// callbackRegistrars take a function to invoke later.
var callbackRegistrars = map[string]bool{
	"subscribe": true, "register": true, "add_listener": true, "addListener": true,
	"addEventListener": true, "on": true, "once": true, "connect": true, "listen": true,
	"add_observer": true, "addObserver": true, "add_handler": true, "addHandler": true,
	"add_callback": true, "use": true, "atexit": true,
}

// iteratorAdapters do not change which collection is being iterated.
var iteratorAdapters = map[string]bool{
	"iter": true, "iter_mut": true, "into_iter": true, "values": true, "values_mut": true,
	"items": true, "copy": true, "clone": true, "lock": true, "read": true, "borrow": true,
	"unwrap": true, "slice": true,
}

func isUpper(b byte) bool { return b >= 'A' && b <= 'Z' }
