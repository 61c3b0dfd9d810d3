// Package params maps opaque event payloads onto positional method arguments.
//
// Each event category creates its own Namespace. A method registers, per
// namespace, an ordered list of bindings saying which parameter position
// receives the whole payload or a single extracted field:
//
//	ns := registry.CreateNamespace("storage")
//	ns.Bind(mailerDef, "OnChange",
//	    params.Key(0, "key"),
//	    params.Key(1, "newValue"),
//	)
//
// BuildArguments turns a payload into the argument list for that method. A
// method with no bindings in the namespace receives the payload as its only
// argument.
package params
