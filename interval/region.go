// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package interval

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/grailbio/base/errors"
)

// maxPos is the end of a region string that has no positional restriction.
const maxPos = math.MaxInt32

// ParseRegionString parses a region string of one of the forms
//   [contig ID]:[1-based first pos]-[last pos]
//   [contig ID]:[1-based pos]
//   [contig ID]
// returning a contig ID and 0-based interval boundaries.  The interval
// [0, maxPos) is returned if there is no positional restriction.
func ParseRegionString(region string) (result Entry, err error) {
	if len(region) == 0 {
		return result, errors.E(errors.Invalid, "interval.ParseRegionString: empty region string")
	}
	colonPos := strings.LastIndexByte(region, ':')
	if colonPos == -1 {
		return Entry{Chrom: region, Start: 0, End: maxPos}, nil
	}
	if colonPos == 0 {
		return result, errors.E(errors.Invalid, "interval.ParseRegionString: empty contig ID")
	}
	result.Chrom = region[0:colonPos]
	rangeStr := strings.Replace(region[colonPos+1:], ",", "", -1)
	dashPos := strings.IndexByte(rangeStr, '-')
	if dashPos == -1 {
		pos1, err := strconv.Atoi(rangeStr)
		if err != nil || pos1 <= 0 {
			return result, errors.E(errors.Invalid, fmt.Sprintf("interval.ParseRegionString: position %v in region string out of range", rangeStr))
		}
		result.Start, result.End = pos1-1, pos1
		return result, nil
	}
	start1, err := strconv.Atoi(rangeStr[:dashPos])
	if err != nil || start1 <= 0 {
		return result, errors.E(errors.Invalid, fmt.Sprintf("interval.ParseRegionString: position %v in region string out of range", rangeStr[:dashPos]))
	}
	end, err := strconv.Atoi(rangeStr[dashPos+1:])
	if err != nil || end < start1 || end >= maxPos {
		return result, errors.E(errors.Invalid, fmt.Sprintf("interval.ParseRegionString: invalid range string %v", rangeStr))
	}
	result.Start, result.End = start1-1, end
	return result, nil
}

// MaskFromRegions parses each region string and returns their union.
func MaskFromRegions(regions []string) (Mask, error) {
	entries := make([]Entry, 0, len(regions))
	for _, r := range regions {
		e, err := ParseRegionString(r)
		if err != nil {
			return Mask{}, err
		}
		entries = append(entries, e)
	}
	return NewMask(entries)
}

// ReadMask returns the mask described by spec: the path of a BED file
// (optionally gzipped) if spec ends in ".bed" or ".bed.gz", otherwise a
// comma-separated list of region strings.
func ReadMask(ctx context.Context, spec string) (Mask, error) {
	if strings.HasSuffix(spec, ".bed") || strings.HasSuffix(spec, ".bed.gz") {
		return ReadBEDPath(ctx, spec)
	}
	return MaskFromRegions(strings.Split(spec, ","))
}
