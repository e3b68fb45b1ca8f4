// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

/*Package interval implements the two genomic interval structures used by the
  simulator, the calling adapter and the matcher.

  Mask is an interval-union: overlapping intervals are merged, and the only
  queries are containment and intersection.  It is loaded from BED files
  (blacklisted regions) or region strings (excluded chromosomes), and is
  represented per chromosome as a sorted endpoint sequence.

  Index keeps every interval separately and answers overlap queries with the
  ids of all stored intervals, backed by a biogo interval tree per chromosome.
*/
package interval
