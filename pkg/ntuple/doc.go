// Package ntuple writes flat event records ("ntuples") into row trees.
//
// A Table owns a set of typed Columns bound to a rowstore.Tree. Scalar and
// fixed-length columns hold a fixed number of elements per row; variable-length
// columns take their per-row length from a length column, which the Table
// creates lazily as an unsigned 32-bit scalar the first time a column refers
// to it.
//
//	out, _ := ntuple.NewFriendOutput(events, file, "")
//	out.Branch("nJet", "i")
//	out.Branch("Jet_btag", "H", ntuple.WithLengthVar("nJet"))
//	for i := int64(0); i < events.Entries(); i++ {
//		out.FillBranch("Jet_btag", scores(i))
//		out.Fill()
//	}
//	out.Write()
//
// Column values are not reset between rows: a column that is not filled for
// a row repeats the value it held for the previous row.
//
// FullOutput clones an input tree into a new container and carries over the
// container's auxiliary trees and objects, optionally filtered by run and
// luminosity block. FriendOutput creates an empty tree for derived columns
// only.
package ntuple
