// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

/*Package sv defines the typed structural-variant model shared by the
  simulator, the calling adapter and the benchmarking matcher.

  There are exactly five variant types: Deletion, Insertion, Inversion,
  TandemDuplication and Translocation.  Each implements Variant, which is
  sealed so that switches over the concrete types are exhaustive within this
  module.  Coordinates are 0-based half-open everywhere in memory; the
  on-disk tables (see table.go) are 1-based with inclusive ends, and the
  conversion happens only in ReadTable/WriteTable.

  Truth tables and called tables share the same schema so that a Set produced
  by the simulator can be compared like-for-like with a Set produced by the
  caller.
*/
package sv
