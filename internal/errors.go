// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.



package internal

import "errors"

// Error taxonomy. Callers wrap these with fmt.Errorf("%w: ...") to add context,
// and test for them with errors.Is
var (
	ErrInvalidArgument = errors.New("invalid argument")   // non-positive size, FWHM, resolution or plate scale
	ErrIOFailure       = errors.New("i/o failure")        // unreadable, missing or unwritable file
	ErrShapeMismatch   = errors.New("shape mismatch")     // image lacks the expected channel layout
)
