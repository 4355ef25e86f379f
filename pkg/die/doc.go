// Package die resolves names and definitions over a tree of DWARF debugging
// information entries.
//
// The package does not read binaries itself. It works against the Entry,
// Unit and Info interfaces, which pkg/dwarfimage implements on top of
// debug/dwarf and pkg/die/memdie implements in memory.
//
// Core functionality:
//   - FullName reconstructs an entry's qualified name, outermost scope first,
//     counting only struct, class, union and namespace ancestors
//   - Locator.FindDefinition matches a declaration-only entry to the entry
//     that defines it, searching every unit of an image
//   - Key gives entries an identity that survives re-materialization, with
//     a total order and a hash
//   - Decoder turns raw attributes into typed values by dispatching on form
//
// Example:
//
//	loc := die.NewLocator(img, logger)
//	def, err := loc.FindDefinition(decl)
//	if err != nil {
//	    return err
//	}
//	if def == nil {
//	    // declared here, defined in some other binary
//	}
package die
